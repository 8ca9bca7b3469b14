// Package protocol adapts the go-coap message model to the way OIC servers
// are reached here.
//
// Requests are plain message.Message values built by NewRequest. Over IP
// they are handed to a go-coap UDP connection. Over Bluetooth LE GATT they
// are framed with the RFC 8323 TCP coder and written to the request
// characteristic; replies arrive split across notifications and are put
// back together by a FrameReassembler.
//
// # Usage Example
//
//	token, _ := message.GetToken()
//	req := protocol.NewRequest(codes.GET, "/oic/res?rt=oic.r.switch.binary", token)
//	frame, err := protocol.EncodeTCP(req)
//	if err != nil {
//	    return err
//	}
//
//	var fr protocol.FrameReassembler
//	msgs, err := fr.Write(notification)
//
// # Thread Safety
//
// Encoding and decoding are stateless. FrameReassembler is not safe for
// concurrent use.
package protocol
