package workflow

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Command names a workflow operation in history, metrics and events.
type Command string

const (
	CommandRegister           Command = "register"
	CommandApproveLand        Command = "approve_land"
	CommandAssignNGO          Command = "assign_ngo"
	CommandApproveNGOReport   Command = "approve_ngo_report"
	CommandAssignDrone        Command = "assign_drone"
	CommandApproveDroneSurvey Command = "approve_drone_survey"
	CommandFinalApprove       Command = "final_approve"
	CommandReject             Command = "reject"
	CommandRedo               Command = "redo"
	CommandRepair             Command = "repair"
)

// TransitionRequest moves a project one stage forward.
type TransitionRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Message   string `json:"message"`
}

// AssignRequest hands a project to an NGO or drone operator.
type AssignRequest struct {
	ProjectID  string `json:"projectId" validate:"required"`
	AssigneeID string `json:"assigneeId" validate:"required"`
	Message    string `json:"message"`
}

// FinalApproveRequest accepts a project and records its issued credits.
type FinalApproveRequest struct {
	ProjectID     string  `json:"projectId" validate:"required"`
	CarbonCredits float64 `json:"carbonCredits" validate:"required,gt=0"`
	Message       string  `json:"message"`
}

// RejectRequest removes a project from the workflow for good.
type RejectRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// RedoRequest sends a project awaiting final approval back to an earlier stage.
type RedoRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Target    Queue  `json:"target" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

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

// validate checks req against its tags and returns a ValidationError
// describing the first failing fields.
func validate(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationError("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return validationError("%s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func validateCredits(credits float64) error {
	if math.IsInf(credits, 0) || math.IsNaN(credits) {
		return validationError("carbonCredits must be a finite number")
	}
	return nil
}
