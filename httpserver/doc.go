/*
Package httpserver serves the simulated KME over mutual TLS.

Every connection must present a client certificate chaining to the configured
client CA. The key delivery routes are mounted by kmehandler, which identifies
the calling SAE by the certificate common name.

# Operational Endpoints

  - GET /livez: liveness, always 200 while the process runs
  - GET /readyz: readiness, 503 once draining
  - GET /drain: mark the server not ready for DrainDuration before shutdown
  - GET /undrain: mark the server ready again

With EnablePprof the standard pprof handlers are mounted under /debug/pprof.

# Usage

	handler := kmehandler.NewHandler(store, kmehandler.DefaultBasePath, log)
	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:   "127.0.0.1:8443",
		TLSCertPath:  "pki/kme.crt",
		TLSKeyPath:   "pki/kme.key",
		ClientCAPath: "pki/root.crt",
		Log:          log,
	}, handler)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
