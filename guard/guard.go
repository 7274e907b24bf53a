// Package guard decides whether a form may be submitted.
package guard

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/moyoez/productshot/form"
	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/transfer"
	"github.com/moyoez/productshot/types"
)

var (
	ErrUploadsInProgress = errors.New("uploads in progress")
	ErrMissingConfig     = errors.New("validation URL not configured")
	ErrEmptyVerdict      = errors.New("empty validation response")
)

const (
	MsgNameRequired = "Product name is required"
	MsgNameTooShort = "Please enter the full product name (at least two words)"
	MsgUploadsBusy  = "Please wait for all uploads to complete before submitting"
	MsgIncomplete   = "The submission is incomplete, please review the form"
)

// Action is the outcome of a submission check.
type Action int

const (
	// Submit means the server confirmed the form is complete.
	Submit Action = iota
	// Block means the submission must not happen.
	Block
	// Fallback means the plain submission path is taken without a server verdict.
	Fallback
)

func (a Action) String() string {
	switch a {
	case Submit:
		return "submit"
	case Block:
		return "block"
	case Fallback:
		return "fallback"
	}
	return "unknown"
}

// Decision is what the guard concluded and the payload to submit.
type Decision struct {
	Action Action
	Errors []string
	Values url.Values
	// Reason is the underlying cause of a Block or Fallback, when there is one.
	Reason error
}

// Proceed reports whether the plain submission should go ahead.
func (d Decision) Proceed() bool {
	return d.Action != Block
}

// Activity reports in-flight background work, e.g. a dispatcher or a form.
type Activity interface {
	Busy() bool
}

// Validator performs the pre-submit validation round trip.
type Validator interface {
	Validate(ctx context.Context, productID int64, values url.Values) (*types.ValidateResponse, error)
}

// Guard vetoes submissions while uploads run or the form is incomplete.
type Guard struct {
	validator Validator
	activity  []Activity
}

// New creates a guard. validator may be nil, in which case every check that
// passes the local rules falls back to the plain submission.
func New(validator Validator, activity ...Activity) *Guard {
	return &Guard{validator: validator, activity: activity}
}

// ValidateName applies the client-side product name rule.
func ValidateName(name string) []string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return []string{MsgNameRequired}
	case len(strings.Fields(name)) < 2:
		return []string{MsgNameTooShort}
	}
	return nil
}

// Check evaluates f for final submission. The returned values carry the
// hidden already_uploaded fields and the submit_product marker.
func (g *Guard) Check(ctx context.Context, f *form.Form) Decision {
	for _, a := range g.activity {
		if a.Busy() {
			tool.DefaultLogger.Warnf("[Guard] Submission blocked: uploads in progress")
			return Decision{Action: Block, Errors: []string{MsgUploadsBusy}, Reason: ErrUploadsInProgress}
		}
	}

	values := f.Values()
	values.Set("submit_product", "1")
	if errs := ValidateName(values.Get("product_name")); len(errs) > 0 {
		return Decision{Action: Block, Errors: errs, Values: values}
	}

	if g.validator == nil {
		return Decision{Action: Fallback, Values: values, Reason: ErrMissingConfig}
	}
	resp, err := g.validator.Validate(ctx, f.ProductID, values)
	switch {
	case errors.Is(err, transfer.ErrNotConfigured):
		return Decision{Action: Fallback, Values: values, Reason: ErrMissingConfig}
	case err != nil:
		tool.DefaultLogger.Warnf("[Guard] Validation round trip failed, using plain submission: %v", err)
		return Decision{Action: Fallback, Values: values, Reason: err}
	case resp == nil:
		tool.DefaultLogger.Warnf("[Guard] Validation returned no verdict, using plain submission")
		return Decision{Action: Fallback, Values: values, Reason: ErrEmptyVerdict}
	case !resp.Valid:
		errs := resp.Errors
		if len(errs) == 0 {
			errs = []string{MsgIncomplete}
		}
		return Decision{Action: Block, Errors: errs, Values: values}
	}
	return Decision{Action: Submit, Values: values}
}
