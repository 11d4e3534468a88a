package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterStructValidation(updateOfferStructValidation, UpdateOfferRequest{})

	return v
}

// updateOfferStructValidation rejects an update that changes nothing.
func updateOfferStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateOfferRequest)

	if req.Name == nil && req.Description == nil && req.RequiredQuantity == nil &&
		req.WindowMonths == nil && req.Active == nil {
		sl.ReportError(req, "request", "UpdateOfferRequest", "no_changes", "")
	}
}
