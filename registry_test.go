package loader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lbbs/loader/bbsmodule"
)

func TestRegistryBeginOpenCollision(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.beginOpen("smtp.so")
	require.NoError(t, err)

	_, err = r.beginOpen("SMTP")
	require.ErrorIs(t, err, ErrNameCollision, "canonical names must collide regardless of case or extension")
}

func TestRegistryRegisterRequiresOpenInProgress(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.register(bbsmodule.Descriptor{Name: "ghost"})
	require.ErrorIs(t, err, ErrNoOpenInProgress)
}

func TestRegistryListFormatsEachRecord(t *testing.T) {
	r := NewRegistry(nil)
	rec, err := r.beginOpen("chanserv")
	require.NoError(t, err)
	_, err = r.register(bbsmodule.Descriptor{Name: rec.name, Description: "channel service"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.list(&buf))
	require.Contains(t, buf.String(), "chanserv")
	require.Contains(t, buf.String(), "channel service")
}
