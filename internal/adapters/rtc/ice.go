// Package rtc prepares the WebRTC settings browsers use for their peer links.
// Media never passes through the server.
package rtc

import (
	"errors"
	"fmt"

	"github.com/dkeye/meet/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoICEServers = errors.New("no usable ICE servers configured")

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewWebRTCConfig validates the configured STUN/TURN entries. URLs that do not
// parse are skipped; an entry left without URLs is dropped.
func NewWebRTCConfig(entries []config.ICEServer) (webrtc.Configuration, error) {
	if len(entries) == 0 {
		return DefaultWebRTCConfig(), nil
	}

	var servers []webrtc.ICEServer
	for _, e := range entries {
		srv := webrtc.ICEServer{Username: e.Username}
		turn := false
		for _, raw := range e.URLs {
			uri, err := stun.ParseURI(raw)
			if err != nil {
				log.Warn().Err(err).Str("module", "rtc").Str("url", raw).Msg("skipping ICE url")
				continue
			}
			if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
				turn = true
			}
			srv.URLs = append(srv.URLs, raw)
		}
		if len(srv.URLs) == 0 {
			continue
		}
		if turn {
			if e.Username == "" || e.Credential == "" {
				return webrtc.Configuration{}, fmt.Errorf("ice server %v: turn requires username and credential", srv.URLs)
			}
			srv.Credential = e.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, srv)
	}
	if len(servers) == 0 {
		return webrtc.Configuration{}, ErrNoICEServers
	}
	log.Info().Str("module", "rtc").Int("servers", len(servers)).Msg("ICE servers ready")
	return webrtc.Configuration{ICEServers: servers}, nil
}
