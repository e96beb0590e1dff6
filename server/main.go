/******************************************************************************
 *
 *  Description :
 *
 *  Setup & initialization.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"runtime"

	_ "github.com/axischat/axis/server/db/mongodb"
	"github.com/axischat/axis/server/logs"
	"github.com/axischat/axis/server/store"
	"github.com/gorilla/handlers"
	jcr "github.com/tinode/jsonco"
)

const (
	// currentVersion is the version of the wire protocol & API.
	currentVersion = "0.1"

	// minSupportedVersion is the oldest client protocol the server accepts.
	minSupportedVersion = "0.1"
)

var minSupportedVersionValue = parseVersion(minSupportedVersion)

// Build timestamp set by the compiler:
// -ldflags "-X main.buildstamp=`date -u '+%Y%m%dT%H:%M:%SZ'`".
var buildstamp = "undef"

// Process-wide settings shared by the handlers. Collaborating components
// (session store, hub, presence tracker) are wired explicitly in main().
var globals struct {
	// Salt used to sign API keys.
	apiKeySalt []byte
	// Maximum message size allowed from a client.
	maxMessageSize int64
	// Take IP address of the client from the HTTP header.
	useXForwardedFor bool
	// Strict-Transport-Security max age, "" if disabled.
	tlsStrictMaxAge string
	// Channel for async stats updates.
	statsUpdate chan *varUpdate
}

type configType struct {
	// HTTP(S) address:port to listen on.
	Listen string `json:"listen"`
	// URL path for exposing runtime stats, "-" to disable.
	ExpvarPath string `json:"expvar"`
	// Salt for signing API keys.
	APIKeySalt []byte `json:"api_key_salt"`
	// Maximum message size allowed from a client, bytes.
	MaxMessageSize int64 `json:"max_message_size"`
	// Take IP address of the client from the HTTP header.
	UseXForwardedFor bool `json:"use_x_forwarded_for"`
	// Write an access log of HTTP requests.
	AccessLog bool `json:"access_log"`
	// Configuration of the store backend.
	Store json.RawMessage `json:"store_config"`
	// TLS configuration.
	TLS json.RawMessage `json:"tls"`
}

func main() {
	logs.Info.Printf("Server v%s:%s pid=%d started with processes: %d",
		currentVersion, buildstamp, os.Getpid(), runtime.GOMAXPROCS(runtime.NumCPU()))

	configfile := flag.String("config", "./axis.conf", "Path to config file.")
	listenOn := flag.String("listen", "", "Override address and port to listen on.")
	resetDb := flag.Bool("reset_db", false, "Drop and recreate the database.")
	flag.Parse()

	logs.Info.Printf("Using config from '%s'", *configfile)

	var config configType
	if file, err := os.Open(*configfile); err != nil {
		logs.Err.Fatalln("Failed to read config file:", err)
	} else {
		jr := jcr.New(file)
		if err = json.NewDecoder(jr).Decode(&config); err != nil {
			switch jerr := err.(type) {
			case *json.UnmarshalTypeError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
					jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
			case *json.SyntaxError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
					lnum, cnum, jerr.Offset, jerr.Error())
			default:
				logs.Err.Fatalln("Failed to parse config file:", err)
			}
		}
		file.Close()
	}

	if *listenOn != "" {
		config.Listen = *listenOn
	}

	if err := store.Store.Open(1, config.Store); err != nil {
		if !store.Store.IsOpen() && *resetDb {
			// Database does not exist yet, create it.
			if err = store.Store.InitDb(config.Store, true); err != nil {
				logs.Err.Fatal("Failed to initialize the database: ", err)
			}
			logs.Info.Println("Database successfully initialized")
		} else {
			logs.Err.Fatal("Failed to connect to DB: ", err)
		}
	} else if *resetDb {
		store.Store.Close()
		if err = store.Store.InitDb(config.Store, true); err != nil {
			logs.Err.Fatal("Failed to reset the database: ", err)
		}
		logs.Info.Println("Database successfully reset")
	}
	defer func() {
		store.Store.Close()
		logs.Info.Println("Closed database connection(s)")
		logs.Info.Println("All done, good bye")
	}()

	logs.Info.Println("DB adapter", store.Store.GetAdapterName())

	globals.apiKeySalt = config.APIKeySalt
	globals.maxMessageSize = config.MaxMessageSize
	if globals.maxMessageSize <= 0 {
		globals.maxMessageSize = 1 << 19 // 512K
	}
	globals.useXForwardedFor = config.UseXForwardedFor

	sessions := NewSessionStore()
	hub := newHub(sessions)
	tracker := newPresenceTracker(hub)
	sessions.Wire(hub, tracker)

	mux := http.NewServeMux()

	statsInit(mux, config.ExpvarPath)
	statsRegisterInt("LiveSessions")
	statsRegisterInt("TotalSessions")
	statsRegisterInt("IncomingMessagesWebsockTotal")
	statsRegisterInt("OutgoingMessagesWebsockTotal")
	statsRegisterDbStats()

	// Handle websocket clients.
	mux.HandleFunc("/v0/channels", serveWebSocket(sessions))
	// REST API.
	newAPIHandler(sessions, hub).register(mux)
	mux.HandleFunc("/", serve404)

	var handler http.Handler = mux
	handler = handlers.CompressHandler(handler)
	handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Axis-APIKey"}))(handler)
	if config.AccessLog {
		handler = handlers.CombinedLoggingHandler(os.Stdout, handler)
	}
	handler = hstsHandler(handler)

	if err := listenAndServe(handler, config.Listen, config.TLS, sessions, hub, signalHandler()); err != nil {
		logs.Err.Fatal(err)
	}
	statsShutdown()
}
