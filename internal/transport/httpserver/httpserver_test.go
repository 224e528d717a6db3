package httpserver

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/moya-app/overlap-psi/internal/clientcore"
	"github.com/moya-app/overlap-psi/internal/psiparams"
	"github.com/moya-app/overlap-psi/internal/servercore"
	"github.com/moya-app/overlap-psi/internal/transport/httpclient"
)

// Same fixture as clientcore/client_test.go's TestGetIntersectionMatchesFixture
// (original_source/tests/overlap/test_server.py's test_client_server).
var (
	fixtureServerSet = []uint64{
		487639465982,
		542438948507207,
		3259695623874827,
	}
	fixtureServerKey, _ = new(big.Int).SetString("1234567891011121314151617181920", 10)

	fixtureClientSet = []uint64{
		450258435097,
		487639465982,
		436874875093495,
		542438948507207,
		2345934957037,
	}
	fixtureClientKey, _ = new(big.Int).SetString("12345678910111213141516171819222222222222", 10)
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestHTTPRoundTripMatchesFixture(t *testing.T) {
	params := psiparams.Default()
	server := servercore.New(params, fixtureServerKey)
	if err := server.Preprocess(fixtureServerSet); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	router := NewRouter(server, "", nil)
	ts := httptest.NewServer(router)
	defer ts.Close()

	helper := httpclient.New(ts.URL+"/", "", ts.Client())
	client, err := clientcore.New(params, helper, fixtureClientKey)
	if err != nil {
		t.Fatalf("clientcore.New: %v", err)
	}

	blinded := client.PreprocessOPRF(fixtureClientSet)
	matches, err := client.Run(context.Background(), blinded)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sort.Ints(matches)
	if len(matches) != 2 || matches[0] != 1 || matches[1] != 3 {
		t.Fatalf("matches = %v, want [1 3]", matches)
	}
}

func TestHTTPRoundTripRequiresBearerToken(t *testing.T) {
	params := psiparams.Default()
	server := servercore.New(params, fixtureServerKey)
	if err := server.Preprocess(fixtureServerSet); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	hash, err := HashToken("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	router := NewRouter(server, hash, nil)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/parameters")
	if err != nil {
		t.Fatalf("GET /parameters: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHTTPRoundTripWithBearerToken(t *testing.T) {
	params := psiparams.Default()
	server := servercore.New(params, fixtureServerKey)
	if err := server.Preprocess(fixtureServerSet); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	token := "correct-horse-battery-staple"
	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	router := NewRouter(server, hash, nil)
	ts := httptest.NewServer(router)
	defer ts.Close()

	helper := httpclient.New(ts.URL+"/", token, ts.Client())
	client, err := clientcore.New(params, helper, fixtureClientKey)
	if err != nil {
		t.Fatalf("clientcore.New: %v", err)
	}

	count, err := client.GetIntersectionCount(context.Background(), fixtureClientSet)
	if err != nil {
		t.Fatalf("GetIntersectionCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}
