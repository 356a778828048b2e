package users

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"keystone/api"
	"keystone/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Router serves the users endpoints.
type Router struct {
	service  *Service
	validate *validator.Validate
	logger   *zap.SugaredLogger
	loc      *time.Location
}

// NewRouter builds the users router from the shared dependencies.
func NewRouter(deps domain.Deps) (domain.Router, error) {
	if deps.DB == nil {
		return nil, errors.New("users: database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("users")

	validate := deps.Validate
	if validate == nil {
		validate = api.NewValidator()
	}

	var loc *time.Location
	if deps.Clock != nil {
		loc = deps.Clock.Location()
	}

	repo, err := NewCachedRepository(NewSQLRepository(deps.DB, logger), DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Router{
		service:  NewService(repo, deps.Clock, deps.Tracer),
		validate: validate,
		logger:   logger,
		loc:      loc,
	}, nil
}

// Routes mounts the endpoints on r, which is already scoped to /users.
func (rt *Router) Routes(r *mux.Router) {
	r.HandleFunc("", rt.listUsers).Methods(http.MethodGet)
	r.HandleFunc("", rt.createUser).Methods(http.MethodPost)
	r.HandleFunc("/{id}", rt.getUser).Methods(http.MethodGet)
	r.HandleFunc("/{id}", rt.updateUser).Methods(http.MethodPatch)
	r.HandleFunc("/{id}", rt.deleteUser).Methods(http.MethodDelete)
}

func (rt *Router) render(u User) UserRead {
	return NewUserRead(u, rt.loc)
}

// listUsers godoc
//
//	@Summary		List users
//	@Description	Returns users newest first
//	@Tags			users
//	@Produce		json
//	@Param			limit	query		int	false	"Page size (1-100)"	default(50)
//	@Param			offset	query		int	false	"Items to skip"		default(0)
//	@Success		200		{object}	UserCollection
//	@Failure		422		{object}	api.ErrorResponse
//	@Router			/users [get]
func (rt *Router) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		api.WriteError(w, r, http.StatusUnprocessableEntity, err.Error(), err, rt.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, -1)
	if err != nil {
		api.WriteError(w, r, http.StatusUnprocessableEntity, err.Error(), err, rt.logger)
		return
	}

	users, total, err := rt.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		api.WriteInternalError(w, r, err, rt.logger)
		return
	}

	items := make([]UserRead, 0, len(users))
	for _, u := range users {
		items = append(items, rt.render(u))
	}
	api.WriteJSON(w, http.StatusOK, UserCollection{Items: items, Total: total, Limit: limit, Offset: offset})
}

// createUser godoc
//
//	@Summary	Create a user
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Param		user	body		UserCreate	true	"New user"
//	@Success	201		{object}	UserRead
//	@Failure	409		{object}	api.ErrorResponse
//	@Failure	422		{object}	api.ErrorResponse
//	@Router		/users [post]
func (rt *Router) createUser(w http.ResponseWriter, r *http.Request) {
	var in UserCreate
	if err := api.DecodeJSON(w, r, &in, rt.logger); err != nil {
		return
	}
	if err := rt.validate.Struct(in); err != nil {
		api.WriteError(w, r, http.StatusUnprocessableEntity, api.ValidationDetail(err), err, rt.logger)
		return
	}

	u, err := rt.service.CreateUser(r.Context(), in)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, rt.render(u))
}

// getUser godoc
//
//	@Summary	Get a user
//	@Tags		users
//	@Produce	json
//	@Param		id	path		string	true	"User ID"	format(uuid)
//	@Success	200	{object}	UserRead
//	@Failure	404	{object}	api.ErrorResponse
//	@Failure	422	{object}	api.ErrorResponse
//	@Router		/users/{id} [get]
func (rt *Router) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r)
	if !ok {
		return
	}

	u, err := rt.service.GetUser(r.Context(), id)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rt.render(u))
}

// updateUser godoc
//
//	@Summary	Update a user
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string		true	"User ID"	format(uuid)
//	@Param		user	body		UserUpdate	true	"Fields to change"
//	@Success	200		{object}	UserRead
//	@Failure	400		{object}	api.ErrorResponse
//	@Failure	404		{object}	api.ErrorResponse
//	@Failure	409		{object}	api.ErrorResponse
//	@Failure	422		{object}	api.ErrorResponse
//	@Router		/users/{id} [patch]
func (rt *Router) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r)
	if !ok {
		return
	}

	var in UserUpdate
	if err := api.DecodeJSON(w, r, &in, rt.logger); err != nil {
		return
	}
	if in.Empty() {
		api.WriteError(w, r, http.StatusBadRequest, "No fields provided for update", nil, rt.logger)
		return
	}
	if err := rt.validate.Struct(in); err != nil {
		api.WriteError(w, r, http.StatusUnprocessableEntity, api.ValidationDetail(err), err, rt.logger)
		return
	}

	u, err := rt.service.UpdateUser(r.Context(), id, in)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rt.render(u))
}

// deleteUser godoc
//
//	@Summary	Delete a user
//	@Tags		users
//	@Param		id	path	string	true	"User ID"	format(uuid)
//	@Success	204
//	@Failure	404	{object}	api.ErrorResponse
//	@Router		/users/{id} [delete]
func (rt *Router) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r)
	if !ok {
		return
	}

	if err := rt.service.DeleteUser(r.Context(), id); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		api.WriteError(w, r, http.StatusUnprocessableEntity, "id: value is not a valid uuid", err, rt.logger)
		return uuid.Nil, false
	}
	return id, true
}

func (rt *Router) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		api.WriteError(w, r, http.StatusNotFound, "User not found", err, rt.logger)
	case errors.Is(err, ErrEmailTaken):
		api.WriteError(w, r, http.StatusConflict, "Email already registered", err, rt.logger)
	default:
		api.WriteInternalError(w, r, err, rt.logger)
	}
}

// queryInt parses an optional integer query parameter within [lo, hi].
// A negative hi means no upper bound.
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: value is not a valid integer", name)
	}
	if n < lo {
		return 0, fmt.Errorf("%s: must be greater than or equal to %d", name, lo)
	}
	if hi >= 0 && n > hi {
		return 0, fmt.Errorf("%s: must be less than or equal to %d", name, hi)
	}
	return n, nil
}
