package ws

import (
	"sort"

	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/transport"
)

func toInfo(p *config.ParticipantData) transport.ParticipantInfo {
	return transport.ParticipantInfo{
		Identity: p.ID,
		Name:     p.Name,
		HasVideo: p.HasVideo,
		HasAudio: p.HasAudio,
	}
}

func sortInfos(ps []transport.ParticipantInfo) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Identity < ps[j].Identity })
}
