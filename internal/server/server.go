package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kaimoapp/kaimo/internal/analysis"
	"github.com/kaimoapp/kaimo/internal/chat"
	"github.com/kaimoapp/kaimo/internal/clock"
	"github.com/kaimoapp/kaimo/internal/config"
	"github.com/kaimoapp/kaimo/internal/events"
	"github.com/kaimoapp/kaimo/internal/family"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"github.com/kaimoapp/kaimo/internal/identity"
	"github.com/kaimoapp/kaimo/internal/notification"
	"github.com/kaimoapp/kaimo/internal/ratelimit"
	"github.com/kaimoapp/kaimo/internal/recipe"
	"github.com/kaimoapp/kaimo/internal/vision"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(provideVerifier),
	chat.Module,
	vision.Module,
	ratelimit.Module,
	analysis.Module,
	recipe.Module,
	notification.Module,
	family.Module,
	events.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func provideVerifier(cfg config.Config) *identity.Verifier {
	return identity.NewVerifier(cfg.AuthJWTSecret)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	verifier    *identity.Verifier
	clock       clock.Clock
	analysisSvc *analysis.Service
	recipeSvc   *recipe.Service
	familySvc   familydomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Verifier    *identity.Verifier
	Clock       clock.Clock
	AnalysisSvc *analysis.Service
	RecipeSvc   *recipe.Service
	FamilySvc   familydomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		verifier:    p.Verifier,
		clock:       p.Clock,
		analysisSvc: p.AnalysisSvc,
		recipeSvc:   p.RecipeSvc,
		familySvc:   p.FamilySvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.AuthRequired())

	v1.POST("/analyzeImage", s.AnalyzeImage)
	v1.POST("/parseRecipe", s.ParseRecipe)
	v1.POST("/summarizeProductName", s.SummarizeProductName)
	v1.POST("/checkIngredientSimilarity", s.CheckIngredientSimilarity)

	v1.POST("/createFamily", s.CreateFamily)
	v1.POST("/updateSubscription", s.UpdateSubscription)
	v1.POST("/dissolveFamily", s.DissolveFamily)
	v1.POST("/removeFamilyMember", s.RemoveFamilyMember)

	v1.POST("/testConnection", s.TestConnection)
}
