package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func paramOut(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr(v)}}
}

func TestGetParameter_DecryptsByName(t *testing.T) {
	api := &fakeAPI{getOut: paramOut(`{"token":"sk"}`)}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /support/openai-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"sk"}`, v)
	require.Equal(t, "/support/openai-token", *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameter_Errors(t *testing.T) {
	cases := []struct {
		name   string
		client *Client
		param  string
		want   string
	}{
		{name: "missing value", client: &Client{api: &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{}}}}, param: "p", want: "missing value"},
		{name: "api error", client: &Client{api: &fakeAPI{getErr: errors.New("boom")}}, param: "p", want: "boom"},
		{name: "not initialized", client: &Client{}, param: "p", want: "not initialized"},
		{name: "empty name", client: &Client{api: &fakeAPI{}}, param: "  ", want: "required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.client.GetParameter(context.Background(), tc.param)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func TestTokenSource_CachesFirstFetch(t *testing.T) {
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`}
	src, err := NewTokenSource(g, "/support/openai-token")
	require.NoError(t, err)

	for range 3 {
		key, err := src.APIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sk-from-ssm", key)
	}
	require.Equal(t, 1, g.calls)
}

func TestTokenSource_Errors(t *testing.T) {
	cases := []struct {
		name string
		g    *fakeGetter
		want string
	}{
		{name: "missing token field", g: &fakeGetter{val: `{"other":"value"}`}, want: "is empty"},
		{name: "malformed json", g: &fakeGetter{val: `{"broken`}, want: "unmarshal"},
		{name: "getter error", g: &fakeGetter{err: errors.New("ssm unavailable")}, want: "ssm unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := NewTokenSource(tc.g, "/support/openai-token")
			require.NoError(t, err)
			_, err = src.APIKey(context.Background())
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestNewTokenSource_Validates(t *testing.T) {
	_, err := NewTokenSource(nil, "x")
	require.ErrorContains(t, err, "nil")
	_, err = NewTokenSource(&fakeGetter{}, " ")
	require.ErrorContains(t, err, "empty")
}

func TestTokenName(t *testing.T) {
	require.Equal(t, "/support/openai-token", TokenName("/support/", "openai-token"))
}
