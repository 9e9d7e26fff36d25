package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and reports the first failure as a ValidationError
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return models.NewValidationError("", err.Error())
	}

	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return models.NewValidationError(field, "is required")
	case "min":
		return models.NewValidationError(field, fmt.Sprintf("must have at least %s item(s)", fe.Param()))
	case "oneof":
		return models.NewValidationError(field, fmt.Sprintf("must be one of: %s", fe.Param()))
	default:
		return models.NewValidationError(field, fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}

// CreateJobRequest is the input of createAndDispatch
type CreateJobRequest struct {
	Name             string                   `json:"name" yaml:"name" validate:"required"`
	Provider         models.Provider          `json:"provider" yaml:"provider" validate:"required"`
	MessageType      string                   `json:"message_type,omitempty" yaml:"message_type"`
	MessageTemplate  string                   `json:"message_template" yaml:"message_template" validate:"required"`
	Subject          string                   `json:"subject,omitempty" yaml:"subject"`
	TemplateMappings []models.TemplateMapping `json:"template_mappings" yaml:"template_mappings" validate:"dive"`
	ListIDs          []string                 `json:"list_ids" yaml:"list_ids" validate:"required,min=1,dive,required"`
	ProviderConfig   models.Settings          `json:"provider_config,omitempty" yaml:"provider_config"`
	SenderIdentity   string                   `json:"sender_identity,omitempty" yaml:"sender_identity"`
}

// Validate performs validation on the create job request
func (r *CreateJobRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return models.NewValidationError("name", "is required")
	}
	if strings.TrimSpace(r.MessageTemplate) == "" {
		return models.NewValidationError("message_template", "is required")
	}
	if !models.IsValidProvider(r.Provider) {
		return models.NewValidationError("provider", fmt.Sprintf("unsupported provider %q", r.Provider))
	}
	return nil
}

// ToDispatchRequest binds the request to its tenant and actor
func (r *CreateJobRequest) ToDispatchRequest(companyID, actorID string) models.DispatchRequest {
	return models.DispatchRequest{
		CompanyID:        companyID,
		ActorID:          actorID,
		Name:             strings.TrimSpace(r.Name),
		Provider:         r.Provider,
		MessageType:      r.MessageType,
		MessageTemplate:  r.MessageTemplate,
		Subject:          r.Subject,
		TemplateMappings: r.TemplateMappings,
		ListIDs:          r.ListIDs,
		ProviderSettings: r.ProviderConfig,
		SenderIdentity:   r.SenderIdentity,
	}
}

// requestFromDispatch rebuilds a request so queued and retried dispatches pass the same validation
func requestFromDispatch(d models.DispatchRequest) *CreateJobRequest {
	return &CreateJobRequest{
		Name:             d.Name,
		Provider:         d.Provider,
		MessageType:      d.MessageType,
		MessageTemplate:  d.MessageTemplate,
		Subject:          d.Subject,
		TemplateMappings: d.TemplateMappings,
		ListIDs:          d.ListIDs,
		ProviderConfig:   d.ProviderSettings,
		SenderIdentity:   d.SenderIdentity,
	}
}

// PreviewRequest asks for one rendering without side effects
type PreviewRequest struct {
	MessageTemplate  string                   `json:"message_template" yaml:"message_template"`
	TemplateMappings []models.TemplateMapping `json:"template_mappings" yaml:"template_mappings" validate:"dive"`
	SampleContact    *models.ContactRecord    `json:"sample_contact,omitempty" yaml:"sample_contact"`
}

// Validate performs validation on the preview request
func (r *PreviewRequest) Validate() error {
	return validateStruct(r)
}

// PreviewResult is the rendered sample plus placeholder diagnostics
type PreviewResult struct {
	Rendered     string   `json:"rendered"`
	Placeholders []string `json:"placeholders"`
	Unmapped     []string `json:"unmapped"`
}

// QueuedDispatchResult acknowledges an enqueued dispatch
type QueuedDispatchResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// JobListResult represents paginated campaign job list results
type JobListResult struct {
	Data       []*models.CampaignJob   `json:"data"`
	Pagination models.PaginationResult `json:"pagination"`
}

// RecipientOutcomesResult represents a paginated page of a job's recipient outcomes
type RecipientOutcomesResult struct {
	JobID      string                    `json:"job_id"`
	Data       []models.RecipientOutcome `json:"data"`
	Pagination models.PaginationResult   `json:"pagination"`
}
