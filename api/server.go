package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/rom8726/labflow"
)

type Server struct {
	engine  labflow.IEngine
	plugins []Plugin
}

func NewServer(engine labflow.IEngine, plugins ...Plugin) *Server {
	return &Server{
		engine:  engine,
		plugins: plugins,
	}
}

func (s *Server) AddPlugin(plugin Plugin) {
	s.plugins = append(s.plugins, plugin)
}

func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	RegisterCoreRoutes(mux, s.engine)

	for _, plugin := range s.plugins {
		plugin.RegisterRoutes(mux)
		log.Debug().
			Str("plugin", plugin.Name()).
			Str("description", plugin.Description()).
			Msg("[labflow] api plugin registered")
	}

	return mux
}
