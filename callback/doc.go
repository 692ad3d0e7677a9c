// Package callback runs the loopback HTTP server that receives the OAuth
// authorization redirect.
//
// Two port strategies exist. IdC flows bind 127.0.0.1 on a random port;
// social flows try a fixed list of ports on localhost because the social
// backend only accepts those redirect URIs:
//
//	srv := callback.NewServer(callback.SocialConfig(), log)
//	redirectURI, err := srv.Start(ctx)
//	defer srv.Close()
//	// open the browser ...
//	res, err := srv.Wait(ctx)
//
// A redirect carrying error/error_description, or missing code or state,
// fails Wait. Wait gives up after Config.Timeout (5 minutes by default).
package callback
