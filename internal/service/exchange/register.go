package exchange

import (
	"google.golang.org/grpc"

	"github.com/oggyb/survey-exchange/internal/app"
)

// Registrar ties the Exchange service into the gRPC server
type Registrar struct {
	appCtx  *app.AppContext
	engines *app.Engines
}

// NewRegistrar creates a new Registrar for the Exchange service
func NewRegistrar(appCtx *app.AppContext, engines *app.Engines) *Registrar {
	return &Registrar{appCtx: appCtx, engines: engines}
}

// Register attaches the Exchange service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterExchangeServer(s, NewExchangeService(r.appCtx, r.engines))
}
