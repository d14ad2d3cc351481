package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Dhoini/ekaty/pkg/res"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// Decode декодирует JSON из io.ReadCloser в структуру типа T.
func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// IsValid валидирует структуру типа T.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// HandleBody декодирует, валидирует и обрабатывает тело запроса.
func HandleBody[T any](w http.ResponseWriter, r *http.Request, log *zap.Logger) (*T, error) {
	body, err := Decode[T](r.Body)
	if err != nil {
		log.Warn("failed to decode request body", zap.Error(err))
		res.JsonResponse(w, res.ErrorResponse{Error: "invalid request body"}, http.StatusBadRequest)
		return nil, err
	}

	if err = IsValid(body); err != nil {
		log.Warn("request body validation failed", zap.Error(err))
		res.JsonResponse(w, res.ErrorResponse{Error: "invalid request data", Details: ValidationDetails(err)}, http.StatusBadRequest)
		return nil, err
	}
	return &body, nil
}

// ValidationDetails превращает ошибки validator в карту поле -> правило
func ValidationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

// QueryInt читает целочисленный параметр запроса с значением по умолчанию
func QueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// QueryFloat читает параметр запроса как float64; ok=false если параметр отсутствует или некорректен
func QueryFloat(r *http.Request, key string) (float64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
