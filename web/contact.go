package web

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"repricelab/i18n"
	"repricelab/notify"
)

// ContactTopic is the notification topic of contact form submissions.
const ContactTopic = "contact"

type contactRequest struct {
	Name    string `form:"name" validate:"required,max=100"`
	Email   string `form:"email" validate:"required,email,max=254"`
	Company string `form:"company" validate:"max=100"`
	Message string `form:"message" validate:"required,min=10,max=2000"`
	Plan    string `form:"plan"`
}

func (r *contactRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Company = strings.TrimSpace(r.Company)
	r.Message = strings.TrimSpace(r.Message)
	if _, ok := planBySlug(r.Plan); !ok {
		r.Plan = ""
	}
}

type contactPage struct {
	Form   contactRequest
	Errors map[string]string
	Thanks string
}

// formValidator adapts validator/v10 to echo.Validator. Field names in
// errors are the form names.
type formValidator struct {
	v *validator.Validate
}

func newFormValidator() *formValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("form"), ","); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return &formValidator{v: v}
}

func (fv *formValidator) Validate(i any) error {
	return fv.v.Struct(i)
}

// fieldErrors maps validation failures to message keys per form field.
func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"form": "contact.invalid"}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "contact.required"
		case "email":
			out[fe.Field()] = "contact.badEmail"
		case "min":
			out[fe.Field()] = "contact.tooShort"
		case "max":
			out[fe.Field()] = "contact.tooLong"
		default:
			out[fe.Field()] = "contact.invalid"
		}
	}
	return out
}

func (s *site) contactForm(c echo.Context) error {
	form := contactRequest{Plan: c.QueryParam("plan")}
	form.normalize()
	return c.Render(http.StatusOK, "contact", s.data(c, "contact.title", contactPage{Form: form}))
}

func (s *site) submitContact(c echo.Context) error {
	var form contactRequest
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	form.normalize()
	if err := c.Validate(&form); err != nil {
		page := contactPage{Form: form, Errors: fieldErrors(err)}
		return c.Render(http.StatusUnprocessableEntity, "contact", s.data(c, "contact.title", page))
	}

	s.Logger.WithFields(log.Fields{
		"email":   form.Email,
		"company": form.Company,
		"plan":    form.Plan,
	}).Info("contact request received")
	if s.Notifier != nil {
		body := fmt.Sprintf("%s <%s>", form.Name, form.Email)
		if form.Company != "" {
			body += " from " + form.Company
		}
		if form.Plan != "" {
			body += ", plan " + form.Plan
		}
		s.Notifier.Dispatch(ContactTopic, notify.Notification{
			Title: "New contact request",
			Body:  body,
			URL:   "/dashboard",
			Tag:   "contact-" + form.Email,
		})
	}

	thanks := s.Messages.Tf(i18n.Locale(c), "contact.thanks", form.Name)
	return c.Render(http.StatusOK, "contact", s.data(c, "contact.title", contactPage{Thanks: thanks}))
}
