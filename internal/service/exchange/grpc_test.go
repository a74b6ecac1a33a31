package exchange_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/server"
	"github.com/oggyb/survey-exchange/internal/service/exchange"
)

func dialExchange(t *testing.T, f *fixture) *exchange.Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(
		[]grpc.UnaryServerInterceptor{auth.UnaryInterceptor(f.appCtx.Tokens)},
		exchange.NewRegistrar(f.appCtx, f.engines),
	)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return exchange.NewClient(conn)
}

func withToken(tok string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

// A token minted by SignInAnonymously authenticates later calls.
func TestGRPC_TokenRoundTrip(t *testing.T) {
	f := setupService(t)
	client := dialExchange(t, f)

	signIn, err := client.Call(context.Background(), "SignInAnonymously", nil)
	require.NoError(t, err)
	tok := field(signIn, "token").GetStringValue()
	require.NotEmpty(t, tok)

	_, err = client.Call(context.Background(), "GetPoints", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.Call(withToken("garbage"), "GetPoints", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	pts, err := client.Call(withToken(tok), "GetPoints", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(0), field(pts, "total").GetNumberValue())
}

func TestGRPC_FillAndVerify(t *testing.T) {
	f := setupService(t)
	client := dialExchange(t, f)

	tok, err := f.appCtx.Tokens.Issue(auth.Identity{UserID: "B"})
	require.NoError(t, err)
	ctx := withToken(tok)

	fill, err := client.Call(ctx, "StartFill", map[string]any{"surveyId": "survey-a"})
	require.NoError(t, err)
	assert.True(t, field(fill, "isNew").GetBoolValue())

	res, err := client.Call(ctx, "VerifyResponse", map[string]any{"surveyId": "survey-a"})
	require.NoError(t, err)
	assert.True(t, field(res, "success").GetBoolValue())

	again, err := client.Call(ctx, "VerifyResponse", map[string]any{"surveyId": "survey-a"})
	require.NoError(t, err)
	assert.False(t, field(again, "success").GetBoolValue())
	assert.Equal(t, "NO_PENDING_RESPONSE", field(again, "code").GetStringValue())

	_, err = client.Call(ctx, "NoSuchMethod", nil)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
