package utils

// Control channel identification.
const (
	ProtocolTag = "RTSP/1.0"
	UserAgent   = "AirPlay/540.31"
)

// Header names sent or inspected by the control channel.
const (
	HeaderCSeq           = "CSeq"
	HeaderDACPID         = "DACP-ID"
	HeaderActiveRemote   = "Active-Remote"
	HeaderClientInstance = "Client-Instance"
	HeaderSession        = "Session"
	HeaderTransport      = "Transport"
	HeaderRTPInfo        = "RTP-Info"
	HeaderRange          = "Range"
	HeaderContentType    = "Content-Type"
	HeaderContentLength  = "Content-Length"
	HeaderUserAgent      = "User-Agent"
)

// Content types used by the command set.
const (
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeSDP         = "application/sdp"
	ContentTypeParameters  = "text/parameters"
	ContentTypeDMAPTagged  = "application/x-dmap-tagged"
)

// InvalidCSeq marks a response that carried no usable CSeq header.
const InvalidCSeq int64 = -1
