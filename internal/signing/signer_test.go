package signing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/testutil"
)

func TestClientAgentSigner_NoCredentials(t *testing.T) {
	signer := NewClientAgentSigner(testOptions())

	_, err := signer.Sign(testParams(testutil.CellID(1, 2)))
	assert.True(t, clienterr.IsSigning(err))
	assert.Equal(t, clienterr.CodeNoCredentials, clienterr.CodeOf(err))
}

func TestClientAgentSigner_SignsPerCell(t *testing.T) {
	signer := NewClientAgentSigner(testOptions())
	c1 := testCredentials(t, testutil.CellID(1, 2), holo.AllFunctions())
	c2 := testCredentials(t, testutil.CellID(3, 2), holo.AllFunctions())
	signer.Add(c1)
	signer.Add(c2)

	call, err := signer.Sign(testParams(testutil.CellID(3, 2)))
	require.NoError(t, err)
	assert.Equal(t, c2.SigningKey, call.Provenance)
	require.NoError(t, VerifyWithKey(call, c2.PublicKey()))

	signer.Remove(testutil.CellID(3, 2))
	_, err = signer.Sign(testParams(testutil.CellID(3, 2)))
	assert.Equal(t, clienterr.CodeNoCredentials, clienterr.CodeOf(err))
}

func TestClientAgentSigner_WrongCell(t *testing.T) {
	signer := NewClientAgentSigner(testOptions())
	creds := testCredentials(t, testutil.CellID(1, 2), holo.AllFunctions())
	signer.Set(testutil.CellID(9, 2), creds)

	_, err := signer.Sign(testParams(testutil.CellID(9, 2)))
	assert.Equal(t, clienterr.CodeUnauthorized, clienterr.CodeOf(err))
}

func TestClientAgentSigner_FunctionNotGranted(t *testing.T) {
	signer := NewClientAgentSigner(testOptions())
	cell := testutil.CellID(1, 2)
	signer.Add(testCredentials(t, cell, holo.ListedFunctions(holo.FunctionRef{Zome: "foo", Fn: "bar"})))

	_, err := signer.Sign(testParams(cell))
	assert.True(t, clienterr.IsSigning(err))
	assert.Equal(t, clienterr.CodeUnauthorized, clienterr.CodeOf(err))

	params := testParams(cell)
	params.FnName = "bar"
	_, err = signer.Sign(params)
	assert.NoError(t, err)
}

func TestClientAgentSigner_Concurrent(t *testing.T) {
	signer := NewClientAgentSigner(SignOptions{})
	cell := testutil.CellID(1, 2)
	creds := testCredentials(t, cell, holo.AllFunctions())
	signer.Add(creds)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			call, err := signer.Sign(testParams(cell))
			assert.NoError(t, err)
			assert.NoError(t, Verify(call))
		}()
	}
	wg.Wait()
}
