package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"musclemate/internal/domain"
	"musclemate/internal/email"
	"musclemate/internal/repository"
)

// IdentityOperations es la superficie completa del servicio de identidad.
type IdentityOperations interface {
	Register(ctx context.Context, name, emailAddr, rawPassword string) (domain.User, error)
	Login(ctx context.Context, emailAddr, rawPassword string) (domain.User, error)
	ChangeEmail(ctx context.Context, id, currentPassword, newEmail string) (domain.User, error)
	UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	List(ctx context.Context, nameFilter string) ([]domain.User, error)
	GetByName(ctx context.Context, name string) (domain.User, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CredentialLookup resuelve un principal por email para el hook de
// autenticacion de la capa de transporte.
type CredentialLookup interface {
	ResolveByEmail(ctx context.Context, emailAddr string) (domain.User, error)
}

// IdentityService coordina registro, login y mutaciones autorizadas de la
// cuenta. No guarda estado entre llamadas: todo lo durable vive en el
// repositorio.
type IdentityService struct {
	logger       *zap.Logger
	users        repository.UserRepository
	hasher       PasswordHasher
	tokens       TokenIssuer
	notifier     email.Sender
	loginLimiter LoginRateLimiter
}

var (
	_ IdentityOperations = (*IdentityService)(nil)
	_ CredentialLookup   = (*IdentityService)(nil)
)

const loginWindow = 10 * time.Minute

func NewIdentityService(logger *zap.Logger, users repository.UserRepository, hasher PasswordHasher, tokens TokenIssuer, notifier email.Sender, loginLimiter LoginRateLimiter) *IdentityService {
	if hasher == nil {
		hasher = NewBcryptHasher()
	}
	if loginLimiter == nil {
		loginLimiter = NewLoginRateLimiter(loginWindow, 10)
	}
	return &IdentityService{
		logger:       logger,
		users:        users,
		hasher:       hasher,
		tokens:       tokens,
		notifier:     notifier,
		loginLimiter: loginLimiter,
	}
}

// Register valida los datos, hashea el password y persiste el usuario nuevo.
// Tambien rechaza emails ya registrados; el indice unico del storage respalda
// el chequeo.
func (s *IdentityService) Register(ctx context.Context, name, emailAddr, rawPassword string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("identity service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if !ValidEmail(emailAddr) {
		return domain.User{}, domain.ErrInvalidEmail
	}
	if !ValidPassword(rawPassword) {
		return domain.User{}, domain.ErrWeakPassword
	}

	if _, err := s.users.FindByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, domain.ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(rawPassword)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	return s.users.Save(ctx, user)
}

// Login verifica credenciales y devuelve el usuario con un token de sesion en
// su campo transitorio. Nunca muta estado persistido. Email desconocido y
// password incorrecto responden igual hacia afuera.
func (s *IdentityService) Login(ctx context.Context, emailAddr, rawPassword string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("identity service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || rawPassword == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	if s.loginLimiter != nil && !s.loginLimiter.Allow(emailAddr) {
		return domain.User{}, domain.ErrRateLimited
	}

	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.debug("login for unknown email", zap.String("email", emailAddr))
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" || !s.hasher.Verify(rawPassword, user.PasswordHash) {
		s.debug("login with wrong password", zap.String("user_id", user.ID))
		return domain.User{}, domain.ErrInvalidCredentials
	}

	if s.tokens == nil {
		return domain.User{}, errors.New("token issuer not configured")
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return domain.User{}, err
	}
	user.SessionToken = token
	return user, nil
}

// ChangeEmail exige prueba fresca del password actual aunque el caller ya
// este autenticado en el transporte. El mismo email es un no-op; uno ajeno es
// conflicto. El indice unico cubre la carrera entre el chequeo y el Save.
func (s *IdentityService) ChangeEmail(ctx context.Context, id, currentPassword, newEmail string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("identity service not configured")
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	newEmail = normalizeEmail(newEmail)
	if newEmail == user.Email {
		return s.users.Save(ctx, user)
	}
	if !ValidEmail(newEmail) {
		return domain.User{}, domain.ErrInvalidEmail
	}

	existing, err := s.users.FindByEmail(ctx, newEmail)
	if err == nil && existing.ID != user.ID {
		return domain.User{}, domain.ErrEmailTaken
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	oldEmail := user.Email
	user.Email = newEmail
	saved, err := s.users.Save(ctx, user)
	if err != nil {
		return domain.User{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.SendEmailChangedNotice(ctx, oldEmail, newEmail); err != nil {
			s.warn("email change notice failed", zap.Error(err), zap.String("user_id", user.ID))
		}
	}
	return saved, nil
}

// UpdateProfile aplica solo los campos presentes del patch. Email y password
// quedan fuera: tienen flujos dedicados.
func (s *IdentityService) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("identity service not configured")
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}

	patch.Apply(&user)
	return s.users.Save(ctx, user)
}

func (s *IdentityService) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

// List devuelve todos los usuarios, o los que contienen nameFilter en el
// nombre (sin distinguir mayusculas) cuando el filtro no es vacio.
func (s *IdentityService) List(ctx context.Context, nameFilter string) ([]domain.User, error) {
	nameFilter = strings.TrimSpace(nameFilter)
	if nameFilter == "" {
		return s.users.FindAll(ctx)
	}
	return s.users.FindByNameContains(ctx, nameFilter)
}

func (s *IdentityService) GetByName(ctx context.Context, name string) (domain.User, error) {
	user, err := s.users.FindByName(ctx, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

// Delete borra por id. Un id inexistente no es error: devuelve false.
func (s *IdentityService) Delete(ctx context.Context, id string) (bool, error) {
	err := s.users.DeleteByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResolveByEmail expone la busqueda de principal para la autenticacion del
// transporte. El hash viaja dentro del User; el caller no debe serializarlo.
func (s *IdentityService) ResolveByEmail(ctx context.Context, emailAddr string) (domain.User, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(emailAddr))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

func (s *IdentityService) debug(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Debug(msg, fields...)
	}
}

func (s *IdentityService) warn(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}
