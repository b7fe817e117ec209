package rpcserver

import "github.com/klubi/scout/pkg/rpc"

// registerRoutes wires every endpoint to its handler.
func (s *Server) registerRoutes() {
	s.router.HandleFunc(rpc.Path, s.handleRPC).Methods("POST")

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.HandleFunc("/tools", s.handleListTools).Methods("GET")
	s.router.HandleFunc("/calls", s.handleListCalls).Methods("GET")
}
