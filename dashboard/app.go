// Package dashboard polls a Gmail mailbox for messages whose subject
// matches an operator-set filter and serves the matches as a dashboard
// and a JSON API.
package dashboard

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	jsonParseErrorMessage = `{"errors":[{"message":"failed to parse response body to json"}]}`
)

// App represents the main application state.
type App struct {
	config      *Config
	logger      *zap.SugaredLogger
	location    *time.Location
	store       *SnapshotStore
	credentials *CredentialProvider
	sync        *Synchronizer
	scheduler   *Scheduler
	surface     *ReadSurface
}

// ErrorResponse represents the JSON structure for error responses.
type ErrorResponse struct {
	Errors []Error `json:"errors"`
}

// Error represents an error item in a response.
type Error struct {
	Message string `json:"message"`
}

// RunServer enters server loop.  Only returns when something bad happens.
func RunServer(config *Config) (err error) {
	app, err := newApp(config)
	if err != nil {
		return err
	}

	runRefreshLoop(app.scheduler)
	defer app.Fini()

	server := newServer(app)
	return errors.WithStack(server.ListenAndServe())
}

// createLogger creates and returns a new development logger.
func createLogger() (*zap.SugaredLogger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return logger.Sugar(), nil
}

// newApp creates a new App talking to Gmail.
func newApp(config *Config) (*App, error) {
	logger, err := createLogger()
	if err != nil {
		log.Panicf("cannot initialize logger: %+v", err)
	}

	tokens, err := newTokenStore(config)
	if err != nil {
		return nil, err
	}
	return assembleApp(config, logger, tokens, newGmailProvider), nil
}

// assembleApp wires the components around the given token store and
// provider factory.
func assembleApp(config *Config, logger *zap.SugaredLogger, tokens tokenStore, factory ProviderFactory) *App {
	location, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		logger.Warnw("unknown time zone, using UTC",
			"timezone", config.TimeZone,
			"error", err)
		location = time.UTC
	}

	store := NewSnapshotStore(config.DefaultFilter)
	credentials := NewCredentialProvider(config, tokens, logger)
	synchronizer := NewSynchronizer(store, credentials, factory, logger, config.MaxResults, location)
	scheduler := NewScheduler(synchronizer, time.Duration(config.RefreshIntervalSec)*time.Second, logger)

	return &App{
		config:      config,
		logger:      logger,
		location:    location,
		store:       store,
		credentials: credentials,
		sync:        synchronizer,
		scheduler:   scheduler,
		surface:     NewReadSurface(store, scheduler, logger),
	}
}

// Fini stops the refresh loop and flushes the logger.
func (app *App) Fini() {
	app.scheduler.Stop()
	_ = app.logger.Sync()
}

// newServer creates and configures a new HTTP server.
func newServer(app *App) *http.Server {
	host := app.config.Host
	if host == "" {
		host = "0.0.0.0"
	}

	router := newRouter(app)

	app.logger.Infow("starting server",
		"host", host,
		"port", app.config.Port,
		"filter", app.store.RequestedFilter())

	return &http.Server{
		Handler:      router,
		Addr:         fmt.Sprintf("%s:%d", host, app.config.Port),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// newRouter creates and configures the HTTP router with all endpoints.
func newRouter(app *App) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", app.hDashboard).Methods("GET")
	router.HandleFunc("/healthz", app.hHealth).Methods("GET")
	router.HandleFunc("/api/snapshot", app.hSnapshot).Methods("GET")
	router.HandleFunc("/api/suggestions", app.hSuggestions).Methods("GET")
	router.HandleFunc("/filter", app.hSetFilter).Methods("POST")
	router.HandleFunc("/api/filter", app.hAPISetFilter).Methods("POST")
	router.HandleFunc("/auth", app.hAuth).Methods("GET")
	router.HandleFunc("/auth/callback", app.hAuthCallback).Methods("POST")
	return router
}

// returnJSON writes a JSON response to the HTTP response writer.
func returnJSON(w http.ResponseWriter, val any) {
	returnJSONStatus(w, http.StatusOK, val)
}

// returnJSONStatus is returnJSON with a status code.  The status is written
// only once val has been marshalled.
func returnJSONStatus(w http.ResponseWriter, code int, val any) {
	js, err := json.Marshal(val)
	if err != nil {
		http.Error(w, jsonParseErrorMessage, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(js)
}

// returnErr writes a JSON error response to the HTTP response writer.
func returnErr(app *App, w http.ResponseWriter, apperr *AppError) {
	app.logger.Errorf("error code: %d error: %s %+v", apperr.Code, apperr.Error(), apperr.Internal)

	res := ErrorResponse{
		Errors: []Error{{
			Message: apperr.Error(),
		}},
	}
	bodybytes, err := json.Marshal(res)
	if err != nil {
		app.logger.Errorf("%+v", errors.WithStack(err))
		http.Error(w, jsonParseErrorMessage, http.StatusInternalServerError)
		return
	}
	http.Error(w, string(bodybytes), apperr.Code)
}

// returnErrPage is returnErr for the operator-facing HTML pages.
func returnErrPage(app *App, w http.ResponseWriter, title string, apperr *AppError) {
	app.logger.Errorf("error code: %d error: %s %+v", apperr.Code, apperr.Error(), apperr.Internal)

	err := renderHTML(w, apperr.Code, resultTemplate, resultView{
		Title:    title,
		Message:  apperr.Error(),
		Link:     "/auth",
		LinkText: "Volver a intentar",
	})
	if err != nil {
		app.logger.Errorf("%+v", err)
	}
}

func (app *App) hHealth(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, map[string]string{"version": "1"})
}

func (app *App) hDashboard(w http.ResponseWriter, r *http.Request) {
	snap := app.surface.GetSnapshot()
	err := renderHTML(w, http.StatusOK, dashboardTemplate, dashboardView{
		Snapshot:        snap,
		LastRefreshed:   snap.LastRefreshedAt.In(app.location).Format(displayLayout),
		RequestedFilter: app.store.RequestedFilter(),
		Suggestions:     app.surface.ListSuggestedFilters(),
	})
	if err != nil {
		app.logger.Errorf("%+v", err)
	}
}

func (app *App) hSnapshot(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, app.surface.GetSnapshot())
}

func (app *App) hSuggestions(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, app.surface.ListSuggestedFilters())
}

func (app *App) hSetFilter(w http.ResponseWriter, r *http.Request) {
	newFilter := r.FormValue("newFilter")

	app.logger.Infow("got filter request",
		"newFilter", take(newFilter, 80))

	app.surface.SetFilter(newFilter)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// FilterRequest is the body of POST /api/filter.
type FilterRequest struct {
	Filter string `json:"filter"`
}

func (app *App) hAPISetFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		returnErr(app, w, WrapErr(http.StatusBadRequest, errors.WithStack(err)))
		return
	}

	app.logger.Infow("got api filter request",
		"filter", take(req.Filter, 80))

	if !app.surface.SetFilter(req.Filter) {
		returnErr(app, w, AppErr(http.StatusBadRequest, "filter must not be empty"))
		return
	}

	returnJSONStatus(w, http.StatusAccepted,
		map[string]string{"requestedFilter": app.store.RequestedFilter()})
}

func (app *App) hAuth(w http.ResponseWriter, r *http.Request) {
	view := authView{
		CredentialsEnv:  EnvCredentials,
		CredentialsFile: app.config.CredentialsFile,
	}

	url, err := app.credentials.AuthorizationURL()
	if err != nil {
		if !errors.Is(err, ErrConfigurationMissing) {
			returnErrPage(app, w, "Error", WrapErr(http.StatusInternalServerError, err))
			return
		}
		app.logger.Warnf("authorization requested without credentials: %+v", err)
		view.Missing = true
	}
	view.URL = url

	if err := renderHTML(w, http.StatusOK, authTemplate, view); err != nil {
		app.logger.Errorf("%+v", err)
	}
}

func (app *App) hAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	session, err := app.credentials.ExchangeCode(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthorizationFailed):
			returnErrPage(app, w, "Error de autorización", WrapErr(http.StatusBadRequest, err))
		case errors.Is(err, ErrConfigurationMissing):
			returnErrPage(app, w, "Error de autorización", WrapErr(http.StatusServiceUnavailable, err))
		default:
			returnErrPage(app, w, "Error de autorización", WrapErr(http.StatusInternalServerError, err))
		}
		return
	}

	app.scheduler.Trigger()

	message := "La sesión quedó guardada en " + session.StoredIn() + "."
	if session.StoredIn() == "" {
		message = "No se pudo guardar la sesión: se conserva solo en memoria " +
			"y habrá que autorizar de nuevo al reiniciar."
	}

	err = renderHTML(w, http.StatusOK, resultTemplate, resultView{
		Title:    "¡Autorización exitosa!",
		Message:  message,
		Link:     "/",
		LinkText: "Ir al Dashboard",
	})
	if err != nil {
		app.logger.Errorf("%+v", err)
	}
}
