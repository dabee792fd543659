package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/ravilushqa/otelgqlgen"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// NewServer serves the schema over POST. It expects the request context to carry the caller's
// identity (AuthMiddleware) and a loader set (LoaderMiddleware).
func NewServer(r *Resolver) *handler.Server {
	h := handler.New(NewExecutableSchema(r))
	h.AddTransport(transport.Options{})
	h.AddTransport(transport.POST{})
	h.Use(otelgqlgen.Middleware())
	h.SetErrorPresenter(presentError)
	h.SetRecoverFunc(recoverResolver)
	return h
}

// presentError tags every error with the engine's error kind. Infrastructure errors are logged and hidden.
func presentError(ctx context.Context, err error) *gqlerror.Error {
	gerr := graphql.DefaultErrorPresenter(ctx, err)
	kind := models.ClassifyError(err)
	var requestErr *gqlerror.Error
	if errors.As(err, &requestErr) && requestErr.Unwrap() == nil {
		// parse and schema validation failures
		kind = models.ErrorKindValidation
	}
	if kind == models.ErrorKindInfrastructure {
		biz, _ := utils.GetBusinessIdFromContext(ctx)
		config.LogError(config.GetLogger(), "graph", "presentError", gerr.Path.String(), biz, err)
		gerr.Message = "internal error"
	}
	if gerr.Extensions == nil {
		gerr.Extensions = map[string]interface{}{}
	}
	gerr.Extensions["kind"] = kind
	return gerr
}

func recoverResolver(ctx context.Context, rec interface{}) error {
	err := fmt.Errorf("panic in resolver: %v", rec)
	biz, _ := utils.GetBusinessIdFromContext(ctx)
	config.LogError(config.GetLogger(), "graph", "recoverResolver", "", biz, err)
	return err
}
