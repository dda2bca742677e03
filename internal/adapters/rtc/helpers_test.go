package rtc

import (
	"github.com/dkeye/groupcall/internal/app/sfu"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func domainID(s string) domain.UserID { return domain.UserID(s) }

func sfuKey(ep *Endpoint, kind webrtc.RTPCodecType) sfu.Key {
	return sfu.Key{Source: ep.ID(), Kind: kind}
}
