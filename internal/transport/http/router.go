package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/inkpress/emagazine/internal/handlers"
	mwauth "github.com/inkpress/emagazine/internal/middleware/auth"
	mwratelimit "github.com/inkpress/emagazine/internal/middleware/ratelimit"
	"github.com/inkpress/emagazine/internal/permission"
	"github.com/inkpress/emagazine/internal/ratelimit"
)

type Deps struct {
	Auth     *mwauth.Middleware
	Limiter  *ratelimit.Limiter
	AuthH    *handlers.AuthHandler
	PostH    *handlers.PostHandler
	EditionH *handlers.EditionHandler
	SearchH  *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1", mwratelimit.ByIP(d.Limiter, "api", ratelimit.API))

	v1.POST("/register", d.AuthH.Register, mwratelimit.ByIP(d.Limiter, "signup", ratelimit.Signup))
	v1.POST("/login", d.AuthH.Login, mwratelimit.ByIP(d.Limiter, "login", ratelimit.Login))
	v1.POST("/logout", d.AuthH.LogOut)

	// Public reading surface.
	v1.GET("/posts", d.PostH.ListPosts)
	v1.GET("/posts/:id", d.PostH.GetPost)
	v1.GET("/editions", d.EditionH.ListEditions)
	v1.GET("/editions/:id/download", d.EditionH.DownloadEdition)
	if d.SearchH != nil {
		v1.GET("/search", d.SearchH.Search)
	}

	// Contributor surface: any authenticated account may draft and submit.
	posts := v1.Group("/posts", d.Auth.Require(permission.CreatePost))
	posts.POST("", d.PostH.CreatePost, mwratelimit.BySubject(d.Limiter, "post_create", ratelimit.PostCreate))
	posts.PATCH("/:id", d.PostH.UpdatePost)
	posts.POST("/:id/submit", d.PostH.SubmitPost)

	// Editorial surface.
	review := v1.Group("/review", d.Auth.Require(permission.AcceptRejectSubmissions))
	review.GET("/submissions", d.PostH.ListSubmissions)
	review.POST("/posts/:id/approve", d.PostH.ApprovePost)
	review.POST("/posts/:id/reject", d.PostH.RejectPost)

	publish := v1.Group("/publish", d.Auth.Require(permission.PublishPost))
	publish.POST("/posts/:id", d.PostH.PublishPost)

	// Admin surface.
	editions := v1.Group("/admin/editions", d.Auth.Require(permission.PublishEdition))
	editions.GET("", d.EditionH.ListEditions)
	editions.POST("", d.EditionH.CreateEdition)
	editions.POST("/:id/pdf", d.EditionH.UploadPDF)
	editions.POST("/:id/publish", d.EditionH.PublishEdition)

	sessions := v1.Group("/admin", d.Auth.Require(permission.ManageUsers))
	sessions.GET("/users/:subject/sessions", d.AuthH.Sessions)
	sessions.DELETE("/sessions/:jti", d.AuthH.RevokeSession)
}
