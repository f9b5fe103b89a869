package generator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// ApplicationParams drives GenerateApplicationModel.
type ApplicationParams struct {
	N                 int     `json:"n" validate:"gte=0"`
	MaxWCET           int     `json:"max_wcet" validate:"gtefield=MinWCET"`
	MinWCET           int     `json:"min_wcet" validate:"min=1"`
	MinMCET           int     `json:"min_mcet" validate:"ltefield=MinWCET"`
	MinDeadlineOffset int     `json:"min_deadline_offset" validate:"gte=0"`
	MaxDeadline       int     `json:"max_deadline"`
	LinkProb          float64 `json:"link_prob" validate:"gte=0,lte=1"`
	MaxMessageSize    int     `json:"max_message_size" validate:"min=1"`
}

// PlatformParams drives GeneratePlatformModel.
type PlatformParams struct {
	Compute      int `json:"compute" validate:"min=1"`
	Routers      int `json:"routers" validate:"min=1"`
	Sensors      int `json:"sensors" validate:"min=1"`
	Actuators    int `json:"actuators" validate:"min=1"`
	MaxDelay     int `json:"max_delay" validate:"gtefield=MinDelay"`
	MinDelay     int `json:"min_delay"`
	MaxBandwidth int `json:"max_bandwidth" validate:"gtefield=MinBandwidth"`
	MinBandwidth int `json:"min_bandwidth"`
}

// DefaultApplicationParams matches the parameter form of the browser editor.
func DefaultApplicationParams() ApplicationParams {
	return ApplicationParams{
		N:                 5,
		MaxWCET:           100,
		MinWCET:           1,
		MinMCET:           1,
		MinDeadlineOffset: 10,
		MaxDeadline:       1000,
		LinkProb:          0.5,
		MaxMessageSize:    50,
	}
}

// DefaultPlatformParams matches the parameter form of the browser editor.
func DefaultPlatformParams() PlatformParams {
	return PlatformParams{
		Compute:      6,
		Routers:      3,
		Sensors:      2,
		Actuators:    2,
		MaxDelay:     100,
		MinDelay:     1,
		MaxBandwidth: 100,
		MinBandwidth: 1,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func paramValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterStructValidation(applicationLevel, ApplicationParams{})
		validate = v
	})
	return validate
}

// applicationLevel checks that every drawn deadline offset fits under
// max_deadline.
func applicationLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(ApplicationParams)
	if p.MaxDeadline < p.MinDeadlineOffset+p.MaxWCET {
		sl.ReportError(p.MaxDeadline, "max_deadline", "MaxDeadline", "deadline_span", "")
	}
}

// Validate reports every rejected field of p.
func (p ApplicationParams) Validate() error {
	return check(p)
}

// Validate reports every rejected field of p.
func (p PlatformParams) Validate() error {
	return check(p)
}

func check(params any) error {
	err := paramValidator().Struct(params)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", model.ErrInvalidParameters, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", model.ErrInvalidParameters, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be below %s", fe.Field(), jsonName(fe.Param()))
	case "ltefield":
		return fmt.Sprintf("%s must not exceed %s", fe.Field(), jsonName(fe.Param()))
	case "deadline_span":
		return "max_deadline must be at least min_deadline_offset + max_wcet"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// jsonName turns a Go field name such as MinWCET into min_wcet.
func jsonName(field string) string {
	switch field {
	case "MinWCET":
		return "min_wcet"
	case "MinDelay":
		return "min_delay"
	case "MinBandwidth":
		return "min_bandwidth"
	}
	return field
}
