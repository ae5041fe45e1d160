package grpcrpc

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/xchain/model"
)

func mapRPC(method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return model.NetworkError("connection-lost", method+": grpc call failed", err)
	}

	switch st.Code() {
	case codes.Unavailable:
		// Only a failed dial proves the call never left the client.
		if strings.Contains(st.Message(), "while dialing") {
			return model.NetworkError("unreachable", method+": "+st.Message(), err)
		}
		return model.NetworkError("connection-lost", method+": "+st.Message(), err)
	case codes.DeadlineExceeded, codes.Canceled:
		return model.NetworkError("timeout", method+": "+st.Message(), err)
	case codes.ResourceExhausted:
		return model.NetworkError("rate-limited", method+": "+st.Message(), err)
	default:
		return model.NetworkError("rpc-status", method+": "+st.Code().String()+": "+st.Message(), err)
	}
}
