package campus

import (
	"google.golang.org/grpc"

	"github.com/oggyb/campus-connect/internal/app"
)

// Registrar ties the Campus service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Campus service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Campus service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewService(r.appCtx))
}
