package main

import (
	"io/fs"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wachiwi/motioncam/cmd/motioncam/handlers"
	"github.com/wachiwi/motioncam/cmd/motioncam/middleware"
	"github.com/wachiwi/motioncam/pkg/clips"
	"github.com/wachiwi/motioncam/pkg/config"
	"github.com/wachiwi/motioncam/pkg/control"
)

// routerDeps is everything the status surface reads from or acts on.
type routerDeps struct {
	State   handlers.Snapshotter
	Control *control.Controller
	Clips   *clips.Index
	Source  handlers.FrameSource
	Gate    handlers.Gate
}

func newRouter(cfg *config.Config, deps routerDeps, templates fs.FS) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger)
	router.SetTrustedProxies([]string{"127.0.0.1"})

	auth := cfg.HTTP.AuthEnabled()
	var protected []gin.HandlerFunc
	if auth {
		secret := cfg.HTTP.SessionSecret
		if secret == "" {
			// Sessions will not survive a restart.
			secret = uuid.NewString()
		}
		store := cookie.NewStore([]byte(secret))
		store.Options(sessions.Options{Path: "/", MaxAge: int((7 * 24 * time.Hour).Seconds()), HttpOnly: true})
		router.Use(sessions.Sessions("motioncam", store))

		authHandler := &handlers.AuthHandler{
			User:       cfg.HTTP.User,
			Password:   cfg.HTTP.Password,
			TemplateFS: templates,
		}
		router.GET("/login", authHandler.LoginPage)
		router.POST("/login", authHandler.Login)
		router.GET("/logout", authHandler.Logout)
		protected = append(protected, middleware.RequireLogin("/login"))
	}

	status := &handlers.StatusHandler{
		State:      deps.State,
		Control:    deps.Control,
		Clips:      deps.Clips,
		GraphFile:  cfg.GraphFile,
		AuthOn:     auth,
		TemplateFS: templates,
	}
	cam := &handlers.CameraHandler{
		Source:       deps.Source,
		Gate:         deps.Gate,
		FPS:          cfg.Stream.FPS,
		RetryBackoff: cfg.Stream.RetryBackoff,
	}
	clipFiles := &handlers.ClipsHandler{Dir: cfg.DataDir}

	authorized := router.Group("/", protected...)
	authorized.GET("/", status.Index)
	authorized.GET("/data", status.Data)
	authorized.GET("/graph", status.Graph)
	authorized.GET("/kill", status.Kill)
	authorized.GET("/mode/:mode", status.SetMode)
	authorized.GET("/livestream", cam.Stream)
	authorized.GET("/clips/:name", clipFiles.Serve)

	return router
}
