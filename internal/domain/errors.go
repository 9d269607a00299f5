package domain

import "errors"

// Errores centinela del nucleo de identidad. La capa HTTP los traduce a
// status codes; el resto del codigo los compone con errors.Is.
var (
	// Validacion de entrada.
	ErrInvalidEmail = errors.New("invalid email")
	ErrWeakPassword = errors.New("weak password")

	// Autenticacion. Login devuelve ErrInvalidCredentials tanto para email
	// desconocido como para password incorrecto, para no facilitar
	// enumeracion de cuentas.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")

	// Conflicto de unicidad.
	ErrEmailTaken = errors.New("email already in use")

	// Limite de intentos de login.
	ErrRateLimited = errors.New("rate limited")
)
