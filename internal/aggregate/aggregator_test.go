package aggregate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabtools/epgdc/internal/assemble"
	"github.com/dabtools/epgdc/internal/fetch"
	"github.com/dabtools/epgdc/internal/radiodns"
	"github.com/dabtools/epgdc/internal/spi"
)

const (
	testECC = uint8(0xE1)
	testEID = uint16(0x1234)
	testSID = uint16(0x6001)
)

var testDay = time.Date(2026, 8, 31, 5, 0, 0, 0, time.UTC)

func logoPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 200, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func siXML(logoURL string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<serviceInformation>
  <services>
    <service>
      <shortName>Rock</shortName>
      <mediumName>Absolute Rock</mediumName>
      <mediaDescription>
        <multimedia type="logo_colour_square" mimeValue="image/png" width="32" height="32" url="%s"/>
      </mediaDescription>
      <bearer id="dab:6e1.1234.6001.0"/>
      <bearer id="dab:6e1.9999.6001.0"/>
    </service>
  </services>
</serviceInformation>`, logoURL)
}

const piXML = `<?xml version="1.0"?>
<epg>
  <schedule>
    <scope>
      <serviceScope id="dab:6e1.1234.6001.0"/>
    </scope>
    <programme shortId="1">
      <mediumName>Breakfast</mediumName>
      <mediaDescription>
        <longDescription>Morning music.</longDescription>
      </mediaDescription>
      <location>
        <bearer id="dab:6e1.1234.6001.0"/>
        <time time="2026-08-31T06:00:00Z" duration="PT3H"/>
      </location>
    </programme>
  </schedule>
</epg>`

// carouselServer serves SI, PI and logo documents the way a provider
// would; piStatus lets tests turn the PI day into a 404 or 500.
func carouselServer(t *testing.T, piStatus int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/radiodns/spi/3.1/SI.xml":
			_, _ = w.Write([]byte(siXML(srv.URL + "/logo.png")))
		case "/radiodns/spi/3.1/id/6e1.1234.6001.0/20260831_PI.xml":
			switch piStatus {
			case http.StatusOK:
				_, _ = w.Write([]byte(piXML))
			default:
				w.WriteHeader(piStatus)
			}
		case "/logo.png":
			_, _ = w.Write(logoPNG(t))
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func serverOf(t *testing.T, srv *httptest.Server) radiodns.Server {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return radiodns.Server{Priority: 10, Weight: 50, Target: u.Hostname(), Port: uint16(port)}
}

func testBearer() spi.Bearer {
	return spi.Bearer{ECC: testECC, EID: testEID, SID: testSID, SCIdS: 0}
}

func newAggregator(days int) *Aggregator {
	return New(Config{
		Days: days,
		ECC:  testECC,
		EID:  testEID,
		Now:  func() time.Time { return testDay },
	}, fetch.New(time.Second, nil))
}

func TestRunEndToEnd(t *testing.T) {
	srv := carouselServer(t, http.StatusOK)
	defer srv.Close()

	discoveries := []radiodns.Discovery{{
		FQDN:    "epg.example.com",
		Bearers: []spi.Bearer{testBearer()},
		Servers: []radiodns.Server{serverOf(t, srv)},
	}}

	result := newAggregator(1).Run(context.Background(), discoveries)

	require.Len(t, result.Services, 1)
	svc := result.Services[0]
	assert.Equal(t, "Absolute Rock", svc.Name)

	// Bearers are narrowed to the target multiplex.
	require.Len(t, svc.Bearers, 1)
	assert.Equal(t, testEID, svc.Bearers[0].EID)

	// Media list fully replaced with the normalized items.
	require.Len(t, svc.Media, 1)
	assert.Equal(t, "Rock_1_32x32.png", svc.Media[0].URL)

	// One logo object then one PI object, in that order.
	require.Len(t, result.Objects, 2)
	assert.Equal(t, assemble.ContentImagePNG, result.Objects[0].Type)
	assert.Equal(t, "Rock_1_32x32.png", result.Objects[0].Name)

	pi := result.Objects[1]
	assert.Equal(t, assemble.ContentEPGProgramme, pi.Type)
	assert.Equal(t, "6e1_1234_6001_0_20260831_PI.xml", pi.Name)
	assert.Equal(t, assemble.ScopeIDForBearer(testBearer()), pi.ScopeID)

	// Scope derived from the single timed entry.
	require.NotNil(t, pi.ScopeStart)
	require.NotNil(t, pi.ScopeEnd)
	assert.Equal(t, time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC), pi.ScopeStart.UTC())
	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), pi.ScopeEnd.UTC())

	// The emitted PI references exactly the processed bearer and gets a
	// backfilled short description.
	doc, err := spi.UnmarshalPI(pi.Body)
	require.NoError(t, err)
	require.Len(t, doc.Schedules, 1)
	p := doc.Schedules[0].Programmes[0]
	var hasShort bool
	for _, d := range p.Descriptions {
		if d.Kind == spi.ShortDescription {
			hasShort = true
			assert.Equal(t, "Morning music.", d.Text)
		}
	}
	assert.True(t, hasShort, "short description should be backfilled from the long one")
}

func TestRunPINotFoundIsBenign(t *testing.T) {
	srv := carouselServer(t, http.StatusNotFound)
	defer srv.Close()

	discoveries := []radiodns.Discovery{{
		FQDN:    "epg.example.com",
		Bearers: []spi.Bearer{testBearer()},
		Servers: []radiodns.Server{serverOf(t, srv)},
	}}

	result := newAggregator(1).Run(context.Background(), discoveries)

	require.Len(t, result.Services, 1)
	require.Len(t, result.Objects, 1) // logo only, no PI object
	assert.Equal(t, assemble.ContentImagePNG, result.Objects[0].Type)
}

func TestRunMalformedPISkipsDayOnly(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/radiodns/spi/3.1/SI.xml":
			_, _ = w.Write([]byte(siXML(srv.URL + "/logo.png")))
		case "/radiodns/spi/3.1/id/6e1.1234.6001.0/20260831_PI.xml":
			_, _ = w.Write([]byte("<epg><schedule>")) // truncated
		case "/radiodns/spi/3.1/id/6e1.1234.6001.0/20260901_PI.xml":
			_, _ = w.Write([]byte(piXML))
		case "/logo.png":
			_, _ = w.Write(logoPNG(t))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	discoveries := []radiodns.Discovery{{
		FQDN:    "epg.example.com",
		Bearers: []spi.Bearer{testBearer()},
		Servers: []radiodns.Server{serverOf(t, srv)},
	}}

	result := newAggregator(2).Run(context.Background(), discoveries)

	// Day one is malformed and dropped; day two still lands.
	require.Len(t, result.Services, 1)
	require.Len(t, result.Objects, 2)
	assert.Equal(t, "6e1_1234_6001_0_20260901_PI.xml", result.Objects[1].Name)
}

func TestRunFirstSuccessWins(t *testing.T) {
	good := carouselServer(t, http.StatusOK)
	defer good.Close()

	var secondHits atomic.Int32
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		_, _ = w.Write([]byte(siXML("http://unused.example.com/logo.png")))
	}))
	defer second.Close()

	discoveries := []radiodns.Discovery{{
		FQDN:    "epg.example.com",
		Bearers: []spi.Bearer{testBearer()},
		Servers: []radiodns.Server{
			{Priority: 10, Weight: 90, Target: serverOf(t, good).Target, Port: serverOf(t, good).Port},
			{Priority: 20, Weight: 10, Target: serverOf(t, second).Target, Port: serverOf(t, second).Port},
		},
	}}

	result := newAggregator(1).Run(context.Background(), discoveries)

	// One service, not two: the lower-priority candidate is never
	// consulted once the first source succeeds.
	require.Len(t, result.Services, 1)
	assert.Equal(t, int32(0), secondHits.Load())
}

func TestRunFailedCandidateAdvancesToNext(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := carouselServer(t, http.StatusOK)
	defer good.Close()

	discoveries := []radiodns.Discovery{{
		FQDN:    "epg.example.com",
		Bearers: []spi.Bearer{testBearer()},
		Servers: []radiodns.Server{
			{Priority: 1, Weight: 1, Target: serverOf(t, bad).Target, Port: serverOf(t, bad).Port},
			{Priority: 2, Weight: 1, Target: serverOf(t, good).Target, Port: serverOf(t, good).Port},
		},
	}}

	result := newAggregator(1).Run(context.Background(), discoveries)
	require.Len(t, result.Services, 1)
	assert.Equal(t, "Absolute Rock", result.Services[0].Name)
}

func TestRunNoServicesAnywhere(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer empty.Close()

	discoveries := []radiodns.Discovery{{
		FQDN:    "epg.example.com",
		Bearers: []spi.Bearer{testBearer()},
		Servers: []radiodns.Server{serverOf(t, empty)},
	}}

	result := newAggregator(1).Run(context.Background(), discoveries)
	assert.Empty(t, result.Services)
	assert.Empty(t, result.Objects)
}
