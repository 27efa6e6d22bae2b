// Package rtsp implements the control channel of an audio streaming
// session: the per-session timing state, the fixed command set and the
// multiplexer that correlates out of order responses on one shared
// connection.
//
// A typical negotiation:
//
//	conn, _ := rtsp.Dial(ctx, "receiver.local:7000", &rtsp.DialParams{MaxReconnectAttempts: 3}, logger)
//	session := rtsp.NewSession(conn, rtsp.NewContext(nil), &rtsp.SessionParams{}, nil, logger)
//	session.Context().Reset()
//	session.Announce(ctx)
//	resp, _ := session.Setup(ctx, controlPort, timingPort)
//	session.Context().ApplySetupResponse(resp)
//	session.Record(ctx, session.Context().RTPSeq, session.Context().RTPTime())
package rtsp
