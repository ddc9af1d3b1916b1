package component

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
)

type stubOperator struct {
	Base
	initErr  error
	settings Settings
}

func (s *stubOperator) Initialize(settings Settings) error {
	s.settings = settings
	return s.initErr
}

func (s *stubOperator) Shutdown() error { return nil }
func (s *stubOperator) Type() Type      { return TypeDirectResponseOperator }

func (s *stubOperator) OnMessage(msg message.Message) ([]message.Message, error) {
	return []message.Message{msg}, nil
}

func register(t *testing.T, r *Registry, name string, factory Factory) {
	t.Helper()
	require.NoError(t, r.Register(Registration{
		Name:    name,
		Version: "1.0.0",
		Type:    TypeDirectResponseOperator,
		Factory: factory,
	}))
}

func TestRegistry_NewInstance(t *testing.T) {
	r := NewRegistry()
	register(t, r, "stub", func() Component { return &stubOperator{} })

	comp, err := r.NewInstance("op-1", "stub", "1.0.0", Settings{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, "op-1", comp.ID())
	assert.Equal(t, TypeDirectResponseOperator, comp.Type())
	assert.Equal(t, "v", comp.(*stubOperator).settings["k"])
	assert.Implements(t, (*DirectResponseOperator)(nil), comp)
}

func TestRegistry_UnknownComponent(t *testing.T) {
	r := NewRegistry()
	register(t, r, "stub", func() Component { return &stubOperator{} })

	_, err := r.NewInstance("x", "missing", "1.0.0", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownComponent)

	_, err = r.NewInstance("x", "stub", "2.0.0", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownComponent)
}

func TestRegistry_InstantiationFailurePreservesCause(t *testing.T) {
	cause := errors.New("settings rejected")

	tests := []struct {
		name    string
		factory Factory
		cause   error
	}{
		{"initialize error", func() Component { return &stubOperator{initErr: cause} }, cause},
		{"factory panic", func() Component { panic("constructor exploded") }, nil},
		{"nil component", func() Component { return nil }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			register(t, r, "stub", tt.factory)

			_, err := r.NewInstance("x", "stub", "1.0.0", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, pkgerrors.ErrComponentInstantiationFailed)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestRegistry_TypeMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Name:    "liar",
		Version: "1.0.0",
		Type:    TypeEmitter,
		Factory: func() Component { return &stubOperator{} },
	}))

	_, err := r.NewInstance("x", "liar", "1.0.0", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrComponentInstantiationFailed)
}

func TestRegistry_Register_Validation(t *testing.T) {
	r := NewRegistry()
	factory := func() Component { return &stubOperator{} }

	assert.Error(t, r.Register(Registration{Version: "1", Type: TypeEmitter, Factory: factory}))
	assert.Error(t, r.Register(Registration{Name: "a", Type: TypeEmitter, Factory: factory}))
	assert.Error(t, r.Register(Registration{Name: "a", Version: "1", Type: TypeEmitter}))
	assert.Error(t, r.Register(Registration{Name: "a", Version: "1", Type: "WIDGET", Factory: factory}))

	register(t, r, "dup", factory)
	err := r.Register(Registration{Name: "dup", Version: "1.0.0", Type: TypeDirectResponseOperator, Factory: factory})
	assert.ErrorIs(t, err, pkgerrors.ErrNonUniqueIdentifier)
}

func TestRegistry_ResolutionIsCached(t *testing.T) {
	r := NewRegistry()
	register(t, r, "stub", func() Component { return &stubOperator{} })

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.NewInstance("x", "stub", "1.0.0", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.ResolvedCount())

	reg, err := r.Lookup("stub", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "stub@1.0.0", reg.Key())
	assert.Len(t, r.ListRegistrations(), 1)
}

func TestRegistry_PluginDir(t *testing.T) {
	r := NewRegistry(WithPluginDir(filepath.Join(t.TempDir(), "absent")))

	_, err := r.NewInstance("x", "remote", "1.0.0", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownComponent)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a plugin"), 0o600))
	n, err := r.LoadPluginDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.so"), []byte("garbage"), 0o600))
	n, err = r.LoadPluginDir(dir)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	// failed plugins are remembered and not reopened
	n, err = r.LoadPluginDir(dir)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRegistry_RegisterWithConfig(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterWithConfig(RegistrationConfig{
		Name:    "stub",
		Type:    "operator",
		Factory: func() Component { return &stubOperator{} },
	}))

	reg, err := r.Lookup("stub", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, TypeDirectResponseOperator, reg.Type)

	err = r.RegisterWithConfig(RegistrationConfig{
		Name:    "stub2",
		Type:    "transformer",
		Factory: func() Component { return &stubOperator{} },
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))
}
