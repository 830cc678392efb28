package router

import (
	"context"
	"github.com/julienschmidt/httprouter"
	"net/http"
)

// Param is one named path parameter extracted by the underlying router.
type Param struct {
	Key   string
	Value string
}

// Params is the ordered set of path parameters matched for a request.
type Params []Param

// ByName returns the value of the first parameter with the given key, or
// "" if none matches.
func (p Params) ByName(name string) string {
	for _, param := range p {
		if param.Key == name {
			return param.Value
		}
	}
	return ""
}

// ParamGeter extracts route parameters from a request context, keeping
// handlers independent of the concrete router implementation.
type ParamGeter interface {
	Get(ctx context.Context) Params
}

// Move to interface and this to new package for wrapper
// Route implmentations need to implement the interface
// Get maybe, but mos imporant NamedParams()
type Router struct {
	*httprouter.Router
}

func (r *Router) Get(path string, handler http.Handler) {
	r.Handler("GET", path, handler)
}

func New() *Router {
	return &Router{httprouter.New()}
}

// Implementations of iface router should define also struct implementing NamedParams
// TODO when own package, rename
type HttpRouterNamedParams struct{}

var _ ParamGeter = (*HttpRouterNamedParams)(nil)

// Transform the httprouter context variable in touter independent Params
func (np *HttpRouterNamedParams) Get(ctx context.Context) Params {
	pms, _ := ctx.Value(httprouter.ParamsKey).(httprouter.Params)

	var params Params

	for _, v := range pms {
		p := Param{Key: v.Key, Value: v.Value}
		params = append(params, p)
	}

	return params
}

func NewHttpRouterNamedParams() *HttpRouterNamedParams {
	return &HttpRouterNamedParams{}
}
