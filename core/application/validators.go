package application

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/uniroute/uniroute/core"
)

var (
	serviceSelectionTag  = "serviceselection"
	serviceSelectionText = "invalid service selection"

	documentTagTag  = "doctag"
	documentTagText = "invalid document type"

	paymentMethodTag  = "paymethod"
	paymentMethodText = "invalid payment method"

	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

	// step-1 failure messages; first failing check wins, fixed order
	errFullNameRequired  = errors.New("full name is required")
	errEmailRequired     = errors.New("email is required")
	errEmailInvalid      = errors.New("enter a valid email address")
	errCountryRequired   = errors.New("country is required")
	errUniversityUnknown = errors.New("university could not be resolved")
	errProgramUnknown    = errors.New("program could not be resolved")

	errNoRequiredDocument = errors.New("at least one of high school card, language proof or passport is required")

	// payment messages
	errPaymentMethodInvalid = errors.New("invalid payment method")
	errCardTokenRequired    = errors.New("card token is required")
	errCardHolderRequired   = errors.New("card holder name is required")
	errPaypalEmailRequired  = errors.New("paypal email is required")
	errPaypalEmailInvalid   = errors.New("enter a valid paypal email address")
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(serviceSelectionTag, serviceSelectionValidation)
	core.RegisterCustomTranslation(serviceSelectionTag, serviceSelectionText)

	_ = core.Validate.RegisterValidation(documentTagTag, documentTagValidation)
	core.RegisterCustomTranslation(documentTagTag, documentTagText)

	_ = core.Validate.RegisterValidation(paymentMethodTag, paymentMethodValidation)
	core.RegisterCustomTranslation(paymentMethodTag, paymentMethodText)
}

// Custom Validators

func serviceSelectionValidation(fl validator.FieldLevel) bool {
	return ServiceSelection(fl.Field().String()).IsValid()
}

func documentTagValidation(fl validator.FieldLevel) bool {
	return DocumentTag(fl.Field().String()).IsValid()
}

func paymentMethodValidation(fl validator.FieldLevel) bool {
	return PaymentMethod(fl.Field().String()).IsValid()
}

// Step Validators
//
// Each is a pure predicate returning a core.ValidationError with the first
// failing field; nil means the step gate passes.

// validateStudentStep gates step 1. Checks run in a fixed order:
// full_name → email format → country → university → program.
func validateStudentStep(sd StudentData, universityOK, programOK bool) error {
	if sd.FullName == "" {
		return core.NewValidationError(errFullNameRequired, core.FieldError{Field: "full_name", Error: errFullNameRequired.Error()})
	}
	if sd.Email == "" {
		return core.NewValidationError(errEmailRequired, core.FieldError{Field: "email", Error: errEmailRequired.Error()})
	}
	if !emailRegex.MatchString(sd.Email) {
		return core.NewValidationError(errEmailInvalid, core.FieldError{Field: "email", Error: errEmailInvalid.Error()})
	}
	if sd.Country == "" {
		return core.NewValidationError(errCountryRequired, core.FieldError{Field: "country", Error: errCountryRequired.Error()})
	}
	if !universityOK {
		return core.NewValidationError(errUniversityUnknown, core.FieldError{Field: "university_id", Error: errUniversityUnknown.Error()})
	}
	if !programOK {
		return core.NewValidationError(errProgramUnknown, core.FieldError{Field: "program_id", Error: errProgramUnknown.Error()})
	}
	return nil
}

// validateServicesStep gates step 2: the selection always has a valid default,
// so there is nothing to fail.
func validateServicesStep(sel ServiceSelection) error {
	return nil
}

// validateDocumentsStep gates step 3.
func validateDocumentsStep(a *Application) error {
	if !a.HasRequiredDocument() {
		return core.NewValidationError(errNoRequiredDocument, core.FieldError{Field: "documents", Error: errNoRequiredDocument.Error()})
	}
	return nil
}

// validatePaymentDetails is the inline step-4 check: same validate-first,
// call-second discipline, just not part of the step gate.
func validatePaymentDetails(pd PaymentDetails) error {
	switch pd.Method {
	case PaymentCreditCard:
		if pd.CardToken == "" {
			return core.NewValidationError(errCardTokenRequired, core.FieldError{Field: "card_token", Error: errCardTokenRequired.Error()})
		}
		if pd.CardHolder == "" {
			return core.NewValidationError(errCardHolderRequired, core.FieldError{Field: "card_holder", Error: errCardHolderRequired.Error()})
		}
	case PaymentPaypal:
		if pd.PaypalEmail == "" {
			return core.NewValidationError(errPaypalEmailRequired, core.FieldError{Field: "paypal_email", Error: errPaypalEmailRequired.Error()})
		}
		if !emailRegex.MatchString(pd.PaypalEmail) {
			return core.NewValidationError(errPaypalEmailInvalid, core.FieldError{Field: "paypal_email", Error: errPaypalEmailInvalid.Error()})
		}
	default:
		return core.NewValidationError(errPaymentMethodInvalid, core.FieldError{Field: "method", Error: errPaymentMethodInvalid.Error()})
	}
	return nil
}

// Upload validation

// MaxDocumentSize caps uploads at 20 MB; the boundary itself is accepted.
const MaxDocumentSize = 20 << 20

var allowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

var (
	errDocTagInvalid     = errors.New("invalid document type")
	errDocTypeNotAllowed = errors.New("file type not allowed; accepted: pdf, doc, docx, jpeg, jpg, png, gif, webp")
	errDocTooLarge       = errors.New("file exceeds the 20 MB size limit")
)

// validateUpload runs the client-enforced pre-checks before anything is stored.
func validateUpload(tag DocumentTag, contentType string, size int64) error {
	if !tag.IsValid() {
		return core.NewValidationError(errDocTagInvalid, core.FieldError{Field: "document_type", Error: errDocTagInvalid.Error()})
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return core.NewValidationError(errDocTypeNotAllowed, core.FieldError{Field: "file", Error: errDocTypeNotAllowed.Error()})
	}
	if size > MaxDocumentSize {
		return core.NewValidationError(errDocTooLarge, core.FieldError{Field: "file", Error: errDocTooLarge.Error()})
	}
	return nil
}
