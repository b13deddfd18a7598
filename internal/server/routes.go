package server

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)
	r.Get("/config", s.getConfig)
	r.Get("/instructions", s.getInstructions)

	r.Post("/generate", s.generate)
	r.Post("/stream", s.streamGenerate) // Streaming response

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)
}
