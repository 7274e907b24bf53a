package guard

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moyoez/productshot/form"
	"github.com/moyoez/productshot/transfer"
	"github.com/moyoez/productshot/types"
)

type busyFlag bool

func (b busyFlag) Busy() bool { return bool(b) }

type fakeValidator struct {
	resp   *types.ValidateResponse
	err    error
	called int
	got    url.Values
}

func (v *fakeValidator) Validate(ctx context.Context, productID int64, values url.Values) (*types.ValidateResponse, error) {
	v.called++
	v.got = values
	return v.resp, v.err
}

func namedForm(name string) *form.Form {
	f := form.New(3)
	f.SetProduct(types.ProductInput{ProductName: name})
	return f
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"", []string{MsgNameRequired}},
		{"   ", []string{MsgNameRequired}},
		{"Soup", []string{MsgNameTooShort}},
		{"Tomato  Soup", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ValidateName(tt.name)); diff != "" {
			t.Errorf("ValidateName(%q) mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestCheckBlocksWhileBusy(t *testing.T) {
	v := &fakeValidator{resp: &types.ValidateResponse{Valid: true}}
	d := New(v, busyFlag(false), busyFlag(true)).Check(context.Background(), namedForm("Tomato Soup"))
	if d.Action != Block || !errors.Is(d.Reason, ErrUploadsInProgress) || d.Proceed() {
		t.Errorf("Expected a block for in-flight uploads, got %+v", d)
	}
	if v.called != 0 {
		t.Error("Expected no validation round trip while busy")
	}
}

func TestCheckBlocksOnName(t *testing.T) {
	v := &fakeValidator{resp: &types.ValidateResponse{Valid: true}}
	d := New(v).Check(context.Background(), namedForm("Soup"))
	if d.Action != Block || len(d.Errors) != 1 || d.Errors[0] != MsgNameTooShort {
		t.Errorf("Expected a name block, got %+v", d)
	}
	if v.called != 0 {
		t.Error("Expected no validation round trip for a local failure")
	}
}

func TestCheckServerVerdict(t *testing.T) {
	v := &fakeValidator{resp: &types.ValidateResponse{Valid: false, Errors: []string{"At least one barcode image is required"}}}
	f := namedForm("Tomato Soup")
	d := New(v).Check(context.Background(), f)
	if d.Action != Block || d.Errors[0] != "At least one barcode image is required" {
		t.Errorf("Expected the server errors, got %+v", d)
	}
	if v.got.Get("submit_product") != "1" || v.got.Get("product_name") != "Tomato Soup" {
		t.Errorf("Unexpected validation payload: %v", v.got)
	}

	v.resp = &types.ValidateResponse{Valid: true}
	if d := New(v).Check(context.Background(), f); d.Action != Submit || !d.Proceed() {
		t.Errorf("Expected submit, got %+v", d)
	}
}

func TestCheckFallsBack(t *testing.T) {
	f := namedForm("Tomato Soup")

	if d := New(nil).Check(context.Background(), f); d.Action != Fallback || !errors.Is(d.Reason, ErrMissingConfig) {
		t.Errorf("Expected fallback without a validator, got %+v", d)
	}

	notConfigured := &fakeValidator{err: &transfer.Error{Kind: transfer.ErrNotConfigured, Message: "Validation URL not configured"}}
	if d := New(notConfigured).Check(context.Background(), f); d.Action != Fallback || !errors.Is(d.Reason, ErrMissingConfig) {
		t.Errorf("Expected fallback for a missing URL, got %+v", d)
	}

	broken := &fakeValidator{err: &transfer.Error{Kind: transfer.ErrStatus, Status: 500, Message: "Validation failed (HTTP 500)"}}
	d := New(broken).Check(context.Background(), f)
	if d.Action != Fallback || !errors.Is(d.Reason, transfer.ErrStatus) || !d.Proceed() {
		t.Errorf("Expected fallback after a failed round trip, got %+v", d)
	}
	if d.Values.Get("product_name") != "Tomato Soup" {
		t.Errorf("Expected values on a fallback, got %v", d.Values)
	}
}

func TestCheckWithoutVerdict(t *testing.T) {
	f := namedForm("Tomato Soup")

	d := New(&fakeValidator{}).Check(context.Background(), f)
	if d.Action != Fallback || !errors.Is(d.Reason, ErrEmptyVerdict) || !d.Proceed() {
		t.Errorf("Expected fallback for a nil response, got %+v", d)
	}

	d = New(&fakeValidator{resp: &types.ValidateResponse{}}).Check(context.Background(), f)
	if d.Action != Block || len(d.Errors) != 1 || d.Errors[0] != MsgIncomplete {
		t.Errorf("Expected a block with a generic message, got %+v", d)
	}
}
