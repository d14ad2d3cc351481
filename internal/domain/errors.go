package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated пользователь не аутентифицирован
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized пользователь не авторизован
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials неверный email или пароль
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidOperation неверная операция
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrNotConfigured интеграция не настроена
	ErrNotConfigured = errors.New("integration not configured")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")

	// ErrEventInFlight событие уже обрабатывается другим экземпляром
	ErrEventInFlight = errors.New("webhook event is being processed")

	// ErrSubscriptionPlanNotFound для тарифа нет цены в Stripe
	ErrSubscriptionPlanNotFound = errors.New("subscription plan not found")
)

// FeatureNotAvailableError возвращается, если тариф пользователя не дает доступа к функции
type FeatureNotAvailableError struct {
	Feature  Feature
	Tier     Tier
	Required Tier
}

// Error реализует интерфейс error
func (e *FeatureNotAvailableError) Error() string {
	return fmt.Sprintf("feature %q requires %s tier (current: %s)", e.Feature, e.Required, e.Tier)
}

// Is позволяет сравнивать с ErrUnauthorized
func (e *FeatureNotAvailableError) Is(target error) bool {
	return target == ErrUnauthorized
}

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is позволяет проверять ValidationErrors через errors.Is(err, ErrInvalidInput)
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Err возвращает nil, если ошибок нет
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Temporary сообщает, имеет ли смысл повторить запрос
func (e *ExternalServiceError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.StatusCode == 0
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, code, message string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}
