package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(AuthMiddleware(s.config.Auth))
	{
		v1.POST("/chat", s.handleChat)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:user_id", s.handleGetSession)
			sessions.GET("/:user_id/transcripts", s.handleListTranscripts)
		}
	}
}
