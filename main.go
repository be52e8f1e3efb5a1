package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/openshelf/library-backend/config"
	"github.com/openshelf/library-backend/handlers"
	"github.com/openshelf/library-backend/middleware"
	"github.com/openshelf/library-backend/models"
	"github.com/openshelf/library-backend/service"
	"github.com/openshelf/library-backend/session"
	"github.com/openshelf/library-backend/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	ctx := context.Background()
	db, err := store.NewMongoDB(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		log.Fatal("mongodb:", err)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			log.Println("mongodb disconnect:", err)
		}
	}()

	sessions := session.NewStore()

	var s3Service *service.S3Service
	if cfg.S3Bucket != "" {
		s3Service, err = service.NewS3Service(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretKey)
		if err != nil {
			log.Fatal("s3:", err)
		}
	} else {
		log.Println("warning: AWS_S3_BUCKET not set; cover uploads disabled")
	}

	var notifier *service.Notifier
	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()
	if cfg.SMTPHost != "" {
		notifier = &service.Notifier{
			DB:       db,
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
		scanner := &service.OverdueScanner{DB: db, Notifier: notifier, Interval: cfg.OverdueScanInterval}
		scanner.Start(scanCtx)
	} else {
		log.Println("warning: SMTP_HOST not set; loan emails disabled")
	}

	authHandler := &handlers.AuthHandler{DB: db, Sessions: sessions}
	booksHandler := &handlers.BooksHandler{DB: db, S3: s3Service}
	usersHandler := &handlers.UsersHandler{DB: db, Sessions: sessions}
	loansHandler := &handlers.LoansHandler{Books: db, Users: db, Notifier: notifier}

	page := func(name string) http.HandlerFunc {
		path := filepath.Join(cfg.PagesDir, name)
		return func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, path)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.AllowAll())
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/login", authHandler.Login)
	r.Post("/auth/reset-password", authHandler.ResetPassword)
	r.Get("/logout", authHandler.Logout)

	// Login/register pages; a live session is bounced to its dashboard.
	rootPage := func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
			if u, ok := sessions.Get(cookie.Value); ok {
				if u.Role == models.RoleAdmin {
					http.Redirect(w, r, "/admin", http.StatusFound)
				} else {
					http.Redirect(w, r, "/student", http.StatusFound)
				}
				return
			}
		}
		http.ServeFile(w, r, filepath.Join(cfg.PagesDir, "login.html"))
	}
	r.Get("/", rootPage)
	r.Get("/login", rootPage)
	r.Get("/register", page("register.html"))
	r.Get("/forget", page("password.html"))

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(sessions, models.RoleAdmin))
		r.Get("/", page("admin-dashboard.html"))
		r.Get("/dashboard", page("admin-dashboard.html"))
		r.Get("/manage-books", page("manage-books.html"))
		r.Get("/manage-students", page("manage-students.html"))
		r.Get("/manage-allUsers", page("users.html"))
	})
	r.Route("/student", func(r chi.Router) {
		r.Use(middleware.RequireRole(sessions, models.RoleStudent))
		r.Get("/", page("student-dashboard.html"))
		r.Get("/dashboard", page("student-dashboard.html"))
		r.Get("/view-books", page("view-books.html"))
	})

	r.Get("/api/getBooks", booksHandler.List)
	r.Post("/api/addBook", booksHandler.Add)
	r.Get("/api/searchBooks", booksHandler.Search)
	r.Get("/api/getUsers", usersHandler.List)
	r.Get("/api/books/{isbn}/cover", booksHandler.Cover)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(sessions, models.RoleAdmin))
		r.Patch("/api/modBook", booksHandler.Mod)
		r.Delete("/api/removeBook/{isbn}", booksHandler.Remove)
		r.Get("/api/bookMeta", booksHandler.Meta)
		r.Post("/api/books/{isbn}/cover", booksHandler.UploadCover)

		r.Post("/api/addUser", usersHandler.Add)
		r.Patch("/api/modUser", usersHandler.Mod)
		r.Delete("/api/removeUser/{userName}", usersHandler.Remove)
		r.Get("/api/searchUsers", usersHandler.Search)

		r.Post("/api/issue/{userName}", loansHandler.Issue)
		r.Post("/api/return/{userName}", loansHandler.Return)
		r.Post("/api/renew/{userName}", loansHandler.Renew)
	})

	fileServer := http.FileServer(http.Dir(cfg.PublicDir))
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Println("server listening on :" + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopScan()
	sessions.Clear()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("shutdown:", err)
	}
}
