package gateway

import (
	"errors"

	"github.com/fashionstore/payments-service/app/types"
)

var (
	ErrMethodUnsupported  = errors.New("payment method is not supported")
	ErrGatewayUnsupported = errors.New("gateway is not supported")
)

type Registry struct {
	byMethod  map[types.PaymentMethod]Adapter
	byGateway map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	byMethod := make(map[types.PaymentMethod]Adapter)
	byGateway := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byGateway[a.Name()] = a
		for _, method := range a.Methods() {
			byMethod[method] = a
		}
	}
	return &Registry{byMethod: byMethod, byGateway: byGateway}
}

func (r *Registry) ForMethod(method types.PaymentMethod) (Adapter, error) {
	adapter, ok := r.byMethod[method]
	if !ok {
		return nil, ErrMethodUnsupported
	}
	return adapter, nil
}

func (r *Registry) ForGateway(name string) (Adapter, error) {
	adapter, ok := r.byGateway[name]
	if !ok {
		return nil, ErrGatewayUnsupported
	}
	return adapter, nil
}

func (r *Registry) GatewayNames() []string {
	names := make([]string, 0, len(r.byGateway))
	for name := range r.byGateway {
		names = append(names, name)
	}
	return names
}
