//go:build linux

package sandbox

import (
	"errors"
	"os/user"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLookup(users map[string]*user.User) func(string) (*user.User, error) {
	return func(name string) (*user.User, error) {
		if u, ok := users[name]; ok {
			return u, nil
		}
		return nil, user.UnknownUserError(name)
	}
}

func TestWorkerCredential(t *testing.T) {
	lookup := fakeLookup(map[string]*user.User{
		"nobody": {Username: "nobody", Uid: "65534", Gid: "65534"},
		"root":   {Username: "root", Uid: "0", Gid: "0"},
		"broken": {Username: "broken", Uid: "x", Gid: "0"},
	})
	testCases := []struct {
		name     string
		user     string
		euid     int
		expected *syscall.Credential
		err      error
	}{
		{name: "root host drops to nobody", user: "nobody", euid: 0, expected: &syscall.Credential{Uid: 65534, Gid: 65534}},
		{name: "root host without a user", user: "", euid: 0, err: ErrRootWorker},
		{name: "root host with root user", user: "root", euid: 0, err: ErrRootWorker},
		{name: "unprivileged host keeps itself", user: "nobody", euid: 1000},
		{name: "unprivileged host without a user", user: "", euid: 1000},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := workerCredential(HostConfig{User: tc.user}, tc.euid, lookup)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cred)
		})
	}

	_, err := workerCredential(HostConfig{User: "ghost"}, 0, lookup)
	var unknown user.UnknownUserError
	assert.True(t, errors.As(err, &unknown), "%v", err)

	_, err = workerCredential(HostConfig{User: "broken"}, 0, lookup)
	assert.ErrorContains(t, err, "worker user broken")
}
