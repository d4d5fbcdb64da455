package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"correio-ftp/internal/core/wire"
	"correio-ftp/internal/features/ftp/adapters"
	"correio-ftp/internal/features/shipments/domain"

	"go.uber.org/zap"
)

// FormatListing renders one LIST line.
func FormatListing(s domain.Shipment) string {
	return wire.Listing{
		ID:        s.ID,
		Filename:  s.Filename,
		Status:    string(s.Status),
		Timestamp: s.CreatedAt,
	}.String()
}

func (s *session) handlePasv() error {
	var bindIP net.IP
	if addr, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
		bindIP = addr.IP
	}

	// Any previous listener is closed before the new one is bound.
	s.setPassive(nil)

	pl, err := adapters.OpenPassive(bindIP, s.h.advertise, s.h.cfg.DataTimeout)
	if err != nil {
		s.log.Error("Failed to enter passive mode", zap.Error(err))
		return s.reply(wire.CodeCantOpenData, "Nao foi possivel entrar em modo passivo.")
	}

	line, err := pl.PassiveReply()
	if err != nil {
		pl.Close()
		s.log.Error("Failed to encode passive address", zap.Error(err))
		return s.reply(wire.CodeCantOpenData, "Nao foi possivel entrar em modo passivo.")
	}

	s.setPassive(pl)
	s.log.Debug("Passive mode", zap.Int("data_port", pl.Addr().Port))
	return s.sendLine(line)
}

func (s *session) handleStor(ctx context.Context, filename string) error {
	if _, err := domain.SanitizeFilename(filename); err != nil {
		return s.reply(wire.CodeSyntaxError, "Nome de arquivo invalido.")
	}

	pl := s.takePassive()
	if pl == nil {
		return s.reply(wire.CodeCantOpenData, "Use PASV antes de transferir.")
	}
	defer pl.Close()

	if err := s.reply(wire.CodeOpeningData, "Ok para enviar dados."); err != nil {
		return err
	}

	data, err := s.accept(ctx, pl)
	if err != nil {
		s.log.Warn("Data connection failed", zap.String("command", "STOR"), zap.Error(err))
		return s.reply(wire.CodeCantOpenData, "Nao foi possivel abrir a conexao de dados.")
	}
	defer s.closeData(data)

	shipment, err := s.h.registry.Create(ctx, filename, data)
	switch {
	case errors.Is(err, domain.ErrIDSpaceExhausted):
		s.log.Error("No tracking id available", zap.String("filename", filename))
		return s.reply(wire.CodeNoIDAvailable, "Nenhum ID de rastreio disponivel.")
	case err != nil:
		s.log.Warn("Upload aborted", zap.String("filename", filename), zap.Error(err))
		return s.reply(wire.CodeTransferAborted, "Conexao fechada; transferencia abortada.")
	}

	s.log.Info("Shipment received",
		zap.String("shipment_id", shipment.ID),
		zap.String("filename", shipment.Filename),
	)
	return s.reply(wire.CodeTransferDone, "Transferencia concluida. ID de rastreio: "+shipment.ID)
}

func (s *session) handleRetr(ctx context.Context, id string) error {
	if id == "" {
		return s.reply(wire.CodeSyntaxError, "Informe o ID de rastreio.")
	}

	shipment, content, err := s.h.registry.Open(ctx, id)
	switch {
	case errors.Is(err, domain.ErrShipmentNotFound):
		return s.reply(wire.CodeNotFound, "ID nao encontrado.")
	case errors.Is(err, domain.ErrFileMissing):
		s.log.Error("Shipment file missing", zap.String("shipment_id", id))
		return s.reply(wire.CodeNotFound, "Arquivo fisico nao encontrado para o ID: "+id)
	case err != nil:
		s.log.Error("Failed to open shipment", zap.String("shipment_id", id), zap.Error(err))
		return s.reply(wire.CodeNotFound, "Arquivo fisico nao encontrado para o ID: "+id)
	}
	defer content.Close()

	pl := s.takePassive()
	if pl == nil {
		return s.reply(wire.CodeCantOpenData, "Use PASV antes de transferir.")
	}
	defer pl.Close()

	if err := s.reply(wire.CodeOpeningData, "Abrindo conexao de dados em modo BINARY."); err != nil {
		return err
	}

	data, err := s.accept(ctx, pl)
	if err != nil {
		s.log.Warn("Data connection failed", zap.String("command", "RETR"), zap.Error(err))
		return s.reply(wire.CodeCantOpenData, "Nao foi possivel abrir a conexao de dados.")
	}

	_, copyErr := io.Copy(data, content)
	closeErr := s.closeData(data)
	if copyErr != nil || closeErr != nil {
		s.log.Warn("Download aborted",
			zap.String("shipment_id", id),
			zap.NamedError("copy_error", copyErr),
			zap.NamedError("close_error", closeErr),
		)
		return s.reply(wire.CodeTransferAborted, "Conexao fechada; transferencia abortada.")
	}

	if _, err := s.h.registry.MarkDelivered(ctx, shipment.ID); err != nil {
		s.log.Error("Failed to mark shipment delivered", zap.String("shipment_id", id), zap.Error(err))
	} else {
		s.log.Info("Shipment delivered", zap.String("shipment_id", id))
	}
	return s.reply(wire.CodeTransferDone, "Transferencia de dados concluida.")
}

func (s *session) handleList(ctx context.Context) error {
	pl := s.takePassive()
	if pl == nil {
		return s.reply(wire.CodeCantOpenData, "Use PASV antes de listar.")
	}
	defer pl.Close()

	if err := s.reply(wire.CodeOpeningData, "Aqui vem a listagem de arquivos."); err != nil {
		return err
	}

	data, err := s.accept(ctx, pl)
	if err != nil {
		s.log.Warn("Data connection failed", zap.String("command", "LIST"), zap.Error(err))
		return s.reply(wire.CodeCantOpenData, "Nao foi possivel abrir a conexao de dados.")
	}

	err = writeListing(data, s.h.registry.All())
	if closeErr := s.closeData(data); err == nil {
		err = closeErr
	}
	if err != nil {
		s.log.Warn("Listing aborted", zap.Error(err))
		return s.reply(wire.CodeTransferAborted, "Conexao fechada; transferencia abortada.")
	}

	s.log.Debug("Listing sent")
	return s.reply(wire.CodeTransferDone, "Listagem de diretorio enviada.")
}

func writeListing(w io.Writer, shipments []domain.Shipment) error {
	bw := bufio.NewWriter(w)
	if len(shipments) == 0 {
		if err := wire.WriteLine(bw, wire.EmptyListing); err != nil {
			return err
		}
	}
	for _, shipment := range shipments {
		if err := wire.WriteLine(bw, FormatListing(shipment)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (s *session) handleStat(id string) error {
	shipment, ok := s.h.registry.Get(id)
	if id == "" || !ok {
		return s.reply(wire.CodeNotFound, "ID nao encontrado.")
	}

	return s.send(wire.Reply{
		Code: wire.CodeStatus,
		Lines: []string{
			fmt.Sprintf("%d-Status da encomenda:", wire.CodeStatus),
			"  " + shipment.String(),
			fmt.Sprintf("%d Fim do status", wire.CodeStatus),
		},
	})
}
