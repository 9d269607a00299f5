package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"musclemate/internal/domain"
)

// mockUserRepo guarda usuarios en memoria y replica la garantia del storage
// real: el email es unico de forma atomica dentro de Save.
type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

func (m *mockUserRepo) FindByName(_ context.Context, name string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.usersByID {
		if user.Name == name {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) FindByNameContains(_ context.Context, substring string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []domain.User
	needle := strings.ToLower(substring)
	for _, user := range m.usersByID {
		if strings.Contains(strings.ToLower(user.Name), needle) {
			users = append(users, user)
		}
	}
	return users, nil
}

func (m *mockUserRepo) FindAll(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []domain.User
	for _, user := range m.usersByID {
		users = append(users, user)
	}
	return users, nil
}

func (m *mockUserRepo) Save(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	emailKey := strings.ToLower(user.Email)
	if owner, taken := m.usersByEmail[emailKey]; taken && owner != user.ID {
		return domain.User{}, domain.ErrEmailTaken
	}
	if prev, ok := m.usersByID[user.ID]; ok && !strings.EqualFold(prev.Email, user.Email) {
		delete(m.usersByEmail, strings.ToLower(prev.Email))
	}
	user.SessionToken = ""
	m.usersByID[user.ID] = user
	m.usersByEmail[emailKey] = user.ID
	return user, nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(m.usersByID, id)
	delete(m.usersByEmail, strings.ToLower(user.Email))
	return nil
}

type mockIssuer struct {
	err error
}

func (m *mockIssuer) Issue(user domain.User) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "token-" + user.ID, nil
}

type mockNotifier struct {
	lastTo       string
	lastNewEmail string
	calls        int
	err          error
}

func (m *mockNotifier) SendEmailChangedNotice(_ context.Context, toEmail string, newEmail string) error {
	m.calls++
	m.lastTo = toEmail
	m.lastNewEmail = newEmail
	return m.err
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(_ string) bool {
	return m.allow
}

func newTestService(repo *mockUserRepo) (*IdentityService, *mockNotifier) {
	notifier := &mockNotifier{}
	svc := NewIdentityService(zap.NewNop(), repo, NewBcryptHasher(), &mockIssuer{}, notifier, nil)
	return svc, notifier
}

func mustRegister(t *testing.T, svc *IdentityService, name, email, password string) domain.User {
	t.Helper()
	user, err := svc.Register(context.Background(), name, email, password)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return user
}

func TestRegisterInvalidEmail(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	_, err := svc.Register(context.Background(), "Ana", "not-an-email", "secret1")
	if !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	_, err := svc.Register(context.Background(), "Ana", "ana@example.com", "abc")
	if !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterSuccess(t *testing.T) {
	repo := newMockUserRepo()
	svc, _ := newTestService(repo)

	user := mustRegister(t, svc, "Ana", "Ana@Example.com", "secret1")
	if user.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if user.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret1" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}

	stored, err := repo.FindByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("expected user stored, got %v", err)
	}
	if stored.ID != user.ID {
		t.Fatalf("stored user mismatch")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	_, err := svc.Register(context.Background(), "Bia", "ana@example.com", "secret2")
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	_, err := svc.Login(context.Background(), "ghost@example.com", "secret1")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	_, err := svc.Login(context.Background(), "ana@example.com", "wrong-password")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	repo := newMockUserRepo()
	svc, _ := newTestService(repo)
	registered := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	user, err := svc.Login(context.Background(), "ana@example.com", "secret1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.SessionToken == "" {
		t.Fatalf("expected session token")
	}
	if user.ID != registered.ID {
		t.Fatalf("expected same user back")
	}

	// Login nunca persiste el token.
	stored, err := repo.FindByID(context.Background(), registered.ID)
	if err != nil {
		t.Fatalf("expected stored user, got %v", err)
	}
	if stored.SessionToken != "" {
		t.Fatalf("expected no persisted session token")
	}
}

func TestLoginRateLimited(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewIdentityService(zap.NewNop(), repo, NewBcryptHasher(), &mockIssuer{}, nil, &mockLimiter{allow: false})

	_, err := svc.Login(context.Background(), "ana@example.com", "secret1")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestChangeEmailWrongPassword(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	_, err := svc.ChangeEmail(context.Background(), user.ID, "wrong-password", "new@example.com")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangeEmailUnknownID(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	_, err := svc.ChangeEmail(context.Background(), "missing-id", "secret1", "new@example.com")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestChangeEmailConflict(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	mustRegister(t, svc, "Ana", "ana@example.com", "secret1")
	other := mustRegister(t, svc, "Bia", "bia@example.com", "secret2")

	_, err := svc.ChangeEmail(context.Background(), other.ID, "secret2", "ana@example.com")
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestChangeEmailSuccess(t *testing.T) {
	repo := newMockUserRepo()
	svc, notifier := newTestService(repo)
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	updated, err := svc.ChangeEmail(context.Background(), user.ID, "secret1", "New@Example.com")
	if err != nil {
		t.Fatalf("change email failed: %v", err)
	}
	if updated.Email != "new@example.com" {
		t.Fatalf("expected new email, got %s", updated.Email)
	}

	stored, err := repo.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("expected user under new email, got %v", err)
	}
	if stored.ID != user.ID {
		t.Fatalf("stored user mismatch")
	}
	if _, err := repo.FindByEmail(context.Background(), "ana@example.com"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected old email to be released, got %v", err)
	}

	if notifier.calls != 1 || notifier.lastTo != "ana@example.com" || notifier.lastNewEmail != "new@example.com" {
		t.Fatalf("expected change notice to old address, got %+v", notifier)
	}
}

func TestChangeEmailSameEmailIsNoOp(t *testing.T) {
	svc, notifier := newTestService(newMockUserRepo())
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	updated, err := svc.ChangeEmail(context.Background(), user.ID, "secret1", "ana@example.com")
	if err != nil {
		t.Fatalf("no-op change failed: %v", err)
	}
	if updated.Email != "ana@example.com" {
		t.Fatalf("expected unchanged email, got %s", updated.Email)
	}
	if notifier.calls != 0 {
		t.Fatalf("expected no notice for no-op change")
	}
}

func TestChangeEmailNotifierFailureDoesNotFailOperation(t *testing.T) {
	repo := newMockUserRepo()
	svc, notifier := newTestService(repo)
	notifier.err = errors.New("smtp down")
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	updated, err := svc.ChangeEmail(context.Background(), user.ID, "secret1", "new@example.com")
	if err != nil {
		t.Fatalf("expected success despite notifier failure, got %v", err)
	}
	if updated.Email != "new@example.com" {
		t.Fatalf("expected new email, got %s", updated.Email)
	}
}

// Dos cuentas compiten por el mismo email nuevo: exactamente una gana, la
// otra recibe el conflicto que impone el Save atomico del repositorio.
func TestChangeEmailConcurrentConflict(t *testing.T) {
	repo := newMockUserRepo()
	svc, _ := newTestService(repo)
	first := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")
	second := mustRegister(t, svc, "Bia", "bia@example.com", "secret2")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, attempt := range []struct {
		id       string
		password string
	}{
		{first.ID, "secret1"},
		{second.ID, "secret2"},
	} {
		wg.Add(1)
		go func(i int, id, password string) {
			defer wg.Done()
			_, err := svc.ChangeEmail(context.Background(), id, password, "target@example.com")
			results[i] = err
		}(i, attempt.id, attempt.password)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrEmailTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", successes, conflicts)
	}

	owner, err := repo.FindByEmail(context.Background(), "target@example.com")
	if err != nil {
		t.Fatalf("expected target email owned, got %v", err)
	}
	if owner.ID != first.ID && owner.ID != second.ID {
		t.Fatalf("unexpected owner %s", owner.ID)
	}
}

func TestUpdateProfileSingleField(t *testing.T) {
	repo := newMockUserRepo()
	svc, _ := newTestService(repo)
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	bio := "lifter"
	if _, err := svc.UpdateProfile(context.Background(), user.ID, domain.ProfilePatch{Bio: &bio}); err != nil {
		t.Fatalf("seed patch failed: %v", err)
	}

	city := "Curitiba"
	patch := domain.ProfilePatch{City: &city}
	updated, err := svc.UpdateProfile(context.Background(), user.ID, patch)
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	if updated.City != "Curitiba" {
		t.Fatalf("expected city updated, got %q", updated.City)
	}
	if updated.Name != "Ana" || updated.Bio != "lifter" || updated.Email != "ana@example.com" {
		t.Fatalf("expected other fields untouched, got %+v", updated)
	}

	// Aplicar el mismo patch de nuevo no cambia nada.
	again, err := svc.UpdateProfile(context.Background(), user.ID, patch)
	if err != nil {
		t.Fatalf("second patch failed: %v", err)
	}
	if again.City != updated.City || again.Name != updated.Name || again.Bio != updated.Bio {
		t.Fatalf("expected idempotent patch, got %+v", again)
	}
}

func TestUpdateProfilePresentEmptyOverwrites(t *testing.T) {
	repo := newMockUserRepo()
	svc, _ := newTestService(repo)
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	bio := "lifter"
	if _, err := svc.UpdateProfile(context.Background(), user.ID, domain.ProfilePatch{Bio: &bio}); err != nil {
		t.Fatalf("seed patch failed: %v", err)
	}

	empty := ""
	updated, err := svc.UpdateProfile(context.Background(), user.ID, domain.ProfilePatch{Bio: &empty})
	if err != nil {
		t.Fatalf("clearing patch failed: %v", err)
	}
	if updated.Bio != "" {
		t.Fatalf("expected present empty value to overwrite, got %q", updated.Bio)
	}
}

func TestUpdateProfileUnknownID(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	city := "Curitiba"
	_, err := svc.UpdateProfile(context.Background(), "missing-id", domain.ProfilePatch{City: &city})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListWithAndWithoutFilter(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	mustRegister(t, svc, "Ana Clara", "ana@example.com", "secret1")
	mustRegister(t, svc, "Bianca", "bia@example.com", "secret2")

	all, err := svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 users, got %d", len(all))
	}

	filtered, err := svc.List(context.Background(), "ana")
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "Ana Clara" {
		t.Fatalf("expected case-insensitive substring match, got %+v", filtered)
	}
}

func TestGetByName(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	found, err := svc.GetByName(context.Background(), "Ana")
	if err != nil {
		t.Fatalf("get by name failed: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("expected registered user, got %+v", found)
	}

	if _, err := svc.GetByName(context.Background(), "Ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	deleted, err := svc.Delete(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !deleted {
		t.Fatalf("expected delete to report true")
	}

	if _, err := svc.GetByID(context.Background(), user.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}

	deleted, err = svc.Delete(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if deleted {
		t.Fatalf("expected delete on missing id to report false")
	}
}

func TestResolveByEmail(t *testing.T) {
	svc, _ := newTestService(newMockUserRepo())
	user := mustRegister(t, svc, "Ana", "ana@example.com", "secret1")

	resolved, err := svc.ResolveByEmail(context.Background(), " Ana@Example.com ")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected registered user, got %+v", resolved)
	}

	if _, err := svc.ResolveByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
