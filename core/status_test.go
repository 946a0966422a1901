package core

import (
	"errors"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{ErrInvalidParameter, StatusInvalidParameter},
		{ErrBusy, StatusBusy},
		{ErrChannel, StatusChannelError},
		{ErrTransfer, StatusError},
		{ErrNotInitialized, StatusError},
		{&TransferError{Err: errBusFault}, StatusError},
		{errors.New("other"), StatusError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTransferError(t *testing.T) {
	err := &TransferError{Err: errBusFault}
	if !errors.Is(err, ErrTransfer) || !errors.Is(err, errBusFault) {
		t.Error("TransferError does not match its sentinel and cause")
	}
	if err.Error() != "transfer error: bus fault" {
		t.Errorf("Error() = %q", err.Error())
	}
	if (&TransferError{}).Error() != "transfer error" {
		t.Error("empty TransferError message")
	}
}

func TestStatusString(t *testing.T) {
	if StatusBusy.String() != "busy" || Status(-9).String() != "status(-9)" {
		t.Errorf("got %q, %q", StatusBusy.String(), Status(-9).String())
	}
}

func TestStatusErr(t *testing.T) {
	for _, err := range []error{nil, ErrInvalidParameter, ErrBusy, ErrChannel, ErrTransfer} {
		if got := StatusOf(err).Err(); got != err {
			t.Errorf("StatusOf(%v).Err() = %v", err, got)
		}
	}
	if Status(-7).Err() != ErrTransfer {
		t.Error("unknown status does not map to ErrTransfer")
	}
}
