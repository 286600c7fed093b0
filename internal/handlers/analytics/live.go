package handlers_analytics

import (
	"context"
	"littlefolio/internal/clrefresh"
	"littlefolio/internal/models/clanalytics"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultLiveInterval = 30 * time.Second
	minLiveInterval     = 5 * time.Second
	maxLiveInterval     = 5 * time.Minute
	liveWriteTimeout    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// même politique que le CORS des endpoints analytics
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveFrame est le message poussé à chaque rafraîchissement
type LiveFrame struct {
	Date     string                     `json:"date"`
	Summary  *clanalytics.RollupResult  `json:"summary"`
	Realtime *clanalytics.RealtimeStats `json:"realtime"`
}

// ParseLiveInterval lit l'intervalle demandé et le borne entre 5s et 5min
func ParseLiveInterval(value string) (time.Duration, error) {
	if value == "" {
		return defaultLiveInterval, nil
	}
	interval, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return min(max(interval, minLiveInterval), maxLiveInterval), nil
}

// Live GET /analytics/live?interval=30s, websocket qui pousse le jour courant recalculé
func (ah *AnalyticsHandler) Live(c *gin.Context) {
	interval, err := ParseLiveInterval(c.Query("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Intervalle invalide", "details": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("upgrade websocket refusé")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// le client n'envoie rien; une erreur de lecture signale la déconnexion
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Str("ip", c.ClientIP()).Msg("flux live ouvert")

	clrefresh.Run(ctx, "live", interval, func(ctx context.Context) error {
		frame, err := ah.liveFrame(ctx)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			cancel()
			return err
		}
		return nil
	})

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	log.Debug().Str("ip", c.ClientIP()).Msg("flux live fermé")
}

func (ah *AnalyticsHandler) liveFrame(ctx context.Context) (*LiveFrame, error) {
	summary, err := ah.service.RefreshToday(ctx)
	if err != nil {
		return nil, err
	}
	realtime, err := ah.service.GetRealtimeStats(ctx)
	if err != nil {
		return nil, err
	}
	return &LiveFrame{
		Date:     summary.Date,
		Summary:  summary,
		Realtime: realtime,
	}, nil
}
