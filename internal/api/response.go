package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-availability-scheduling/internal/appointment"
	redisclient "github.com/hackgods/doctor-availability-scheduling/internal/redis"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[appointment.Kind]int{
	appointment.KindUnauthenticated:    http.StatusUnauthorized,
	appointment.KindPermissionDenied:   http.StatusForbidden,
	appointment.KindInvalidArgument:    http.StatusBadRequest,
	appointment.KindNotFound:           http.StatusNotFound,
	appointment.KindFailedPrecondition: http.StatusConflict,
	appointment.KindConflict:           http.StatusConflict,
}

// writeServiceError maps a service error to its HTTP status by kind. Internal
// failures are logged and answered without the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		writeError(w, http.StatusServiceUnavailable, "slot_being_booked", "slot is currently being booked, please retry shortly")
		return
	}

	kind := appointment.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, string(appointment.KindInternal), "internal error")
		return
	}
	writeError(w, status, string(kind), err.Error())
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// An empty body is accepted when allowEmpty is set.
func decodeAndValidate(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: could not parse JSON body: %v", appointment.ErrInvalidArgument, err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, describeFieldError(fe))
			}
			return &appointment.ValidationError{Fields: fields}
		}
		return fmt.Errorf("%w: %v", appointment.ErrInvalidArgument, err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return fmt.Sprintf("%s must match %s", field, fe.Param())
	case "min", "max", "len":
		return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
