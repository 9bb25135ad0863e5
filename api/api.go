package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/0xcafe-io/iz"
	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/auth"
	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/contextutil"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
	"github.com/fatali-fataliyev/envelope_budget/logging"
)

const (
	budgetPath       = "/api/budget/{month}"
	assignedPath     = "/api/budget/{month}/categories/{id}/assigned"
	movePath         = "/api/budget/{month}/move"
	targetPath       = "/api/categories/{id}/target"
	categoryPath     = "/api/categories/{id}"
	traceIDHeaderKey = "X-Request-ID"
)

type Api struct {
	Service *budget.BudgetTracker
	Auth    *auth.Authenticator
}

func NewApi(service *budget.BudgetTracker, authenticator *auth.Authenticator) *Api {
	return &Api{
		Service: service,
		Auth:    authenticator,
	}
}

// Routes registers every budget endpoint on a new mux.
func (api *Api) Routes() *http.ServeMux {
	server := http.NewServeMux()

	// Budget
	server.HandleFunc("GET "+budgetPath, iz.Bind(api.GetBudgetHandler))          // Budget view of a month
	server.HandleFunc("PUT "+assignedPath, iz.Bind(api.SetAssignedHandler))      // Set assigned amount
	server.HandleFunc("POST "+movePath, iz.Bind(api.MoveMoneyHandler))           // Move money between categories
	server.HandleFunc("PUT "+targetPath, iz.Bind(api.SetTargetHandler))          // Set or replace target
	server.HandleFunc("DELETE "+targetPath, iz.Bind(api.ClearTargetHandler))     // Remove target
	server.HandleFunc("POST /api/groups", iz.Bind(api.CreateGroupHandler))       // Create category group
	server.HandleFunc("GET /api/categories", iz.Bind(api.ListCategoriesHandler)) // List groups and categories
	server.HandleFunc("POST /api/categories", iz.Bind(api.CreateCategoryHandler))
	server.HandleFunc("PUT "+categoryPath, iz.Bind(api.UpdateCategoryHandler))
	server.HandleFunc("DELETE "+categoryPath, iz.Bind(api.DeleteCategoryHandler))
	server.HandleFunc("POST /api/transactions", iz.Bind(api.SaveTransactionHandler)) // Create transaction

	return server
}

func errorResponse(err error) iz.Responder {
	return iz.Respond().Status(httpStatusFromError(err)).JSON(errorBody(err))
}

func badRequest(format string, args ...any) iz.Responder {
	return errorResponse(appErrors.New(appErrors.ErrInvalidInput, format, args...))
}

// authenticate resolves the owner of the request and returns a context
// carrying the request trace id and owner.
func (api *Api) authenticate(r *iz.Request) (context.Context, string, iz.Responder) {
	ctx := contextutil.WithTraceID(r.Context(), r.Header.Get(traceIDHeaderKey))

	ownerID, err := api.Auth.Authenticate(ctx, r.Header.Get("Authorization"))
	if err != nil {
		logging.Logger.WithField("trace_id", contextutil.TraceIDFromContext(ctx)).Warnf("authorization failed: %v", err)
		return nil, "", errorResponse(err)
	}
	return contextutil.WithOwnerID(ctx, ownerID), ownerID, nil
}

func decodeBody(r *iz.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return appErrors.New(appErrors.ErrInvalidInput, "invalid request body: %s", err.Error())
	}
	return nil
}

func (api *Api) GetBudgetHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	month, err := budget.ParseMonth(r.PathValue("month"))
	if err != nil {
		return errorResponse(err)
	}

	view, err := api.Service.GetBudget(ctx, ownerID, month)
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(BudgetToHttp(view))
}

func (api *Api) SetAssignedHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	month, err := budget.ParseMonth(r.PathValue("month"))
	if err != nil {
		return errorResponse(err)
	}

	var req SetAssignedRequest
	if err := decodeBody(r, &req); err != nil {
		return errorResponse(err)
	}
	if req.Amount == nil {
		return badRequest("amount is required")
	}

	data, err := api.Service.SetAssigned(ctx, ownerID, r.PathValue("id"), month, money.Cents(*req.Amount))
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(CategoryBudgetToHttp(data))
}

func (api *Api) MoveMoneyHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	month, err := budget.ParseMonth(r.PathValue("month"))
	if err != nil {
		return errorResponse(err)
	}

	var req MoveMoneyRequest
	if err := decodeBody(r, &req); err != nil {
		return errorResponse(err)
	}

	result, err := api.Service.MoveMoney(ctx, ownerID, req.Source, req.Destination, month, money.Cents(req.Amount))
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(MoveMoneyResponse{
		Mode:        string(result.Mode),
		Source:      CategoryBudgetToHttp(result.Source),
		Destination: CategoryBudgetToHttp(result.Dest),
	})
}

func (api *Api) SetTargetHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	categoryID := r.PathValue("id")

	var req TargetRequest
	if err := decodeBody(r, &req); err != nil {
		return errorResponse(err)
	}

	if err := api.Service.SetTarget(ctx, ownerID, categoryID, req.toTarget()); err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(MessageResponse{Message: "target saved"})
}

func (api *Api) ClearTargetHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	categoryID := r.PathValue("id")

	if err := api.Service.ClearTarget(ctx, ownerID, categoryID); err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(MessageResponse{Message: "target removed"})
}

func (api *Api) CreateGroupHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	var req GroupRequest
	if err := decodeBody(r, &req); err != nil {
		return errorResponse(err)
	}

	group, err := api.Service.CreateGroup(ctx, ownerID, budget.CategoryGroupRequest{Name: req.Name, Position: req.Position})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(201).JSON(GroupToHttp(group))
}

func (api *Api) ListCategoriesHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	groups, categories, err := api.Service.ListCategories(ctx, ownerID)
	if err != nil {
		return errorResponse(err)
	}

	resp := ListCategoriesResponse{
		Groups:     make([]GroupItem, 0, len(groups)),
		Categories: make([]CategoryItem, 0, len(categories)),
	}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, GroupToHttp(g))
	}
	for _, c := range categories {
		resp.Categories = append(resp.Categories, CategoryToHttp(c))
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) CreateCategoryHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	var req CategoryRequest
	if err := decodeBody(r, &req); err != nil {
		return errorResponse(err)
	}

	category, err := api.Service.CreateCategory(ctx, ownerID, budget.CategoryRequest{
		GroupID:  req.GroupID,
		Name:     req.Name,
		Position: req.Position,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(201).JSON(CategoryToHttp(category))
}

func (api *Api) UpdateCategoryHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	categoryID := r.PathValue("id")

	var req UpdateCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		return errorResponse(err)
	}

	category, err := api.Service.UpdateCategory(ctx, ownerID, budget.UpdateCategoryRequest{
		ID:          categoryID,
		NewName:     req.Name,
		NewGroupID:  req.GroupID,
		NewPosition: req.Position,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(CategoryToHttp(category))
}

func (api *Api) DeleteCategoryHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	categoryID := r.PathValue("id")

	if err := api.Service.DeleteCategory(ctx, ownerID, categoryID); err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(MessageResponse{Message: "category deleted"})
}

func (api *Api) SaveTransactionHandler(r *iz.Request) iz.Responder {
	ctx, ownerID, denied := api.authenticate(r)
	if denied != nil {
		return denied
	}

	var req CreateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		logging.Logger.Errorf("failed to parse save transaction request: %v", err)
		return errorResponse(err)
	}

	amountStr := strings.TrimSpace(req.Amount)
	if amountStr == "" {
		return badRequest("amount is required")
	}
	amount, err := money.Parse(amountStr)
	if err != nil {
		return errorResponse(appErrors.New(appErrors.ErrInvalidAmount, "invalid transaction amount format: '%s'", amountStr))
	}

	date, err := parseTransactionDate(req.Date)
	if err != nil {
		return errorResponse(err)
	}

	txn, err := api.Service.SaveTransaction(ctx, ownerID, budget.TransactionRequest{
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		Amount:     amount,
		Date:       date,
		Cleared:    req.Cleared,
		Note:       req.Note,
	})
	if err != nil {
		return errorResponse(fmt.Errorf("failed to create transaction: %w", err))
	}
	return iz.Respond().Status(201).JSON(TransactionToHttp(txn))
}
