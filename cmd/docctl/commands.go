package main

import (
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/database"
	"doc-organizer-go/pkg/es"
	"doc-organizer-go/pkg/kafka"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/storage"
	"doc-organizer-go/pkg/tika"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	cfg        config.Config
}

// load 读取配置并初始化日志，不建立任何外部连接。
func (o *rootOptions) load() error {
	_, cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg
	log.Init(cfg.Log.Level, "console", "")
	return nil
}

func newCreateIndexCmd(opts *rootOptions) *cobra.Command {
	var dims int
	cmd := &cobra.Command{
		Use:   "create-index",
		Short: "Create the Elasticsearch document index if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.load(); err != nil {
				return err
			}
			defer log.Sync()
			esCfg := opts.cfg.Elasticsearch
			if esCfg.IndexName == "" {
				return fmt.Errorf("elasticsearch.index_name is empty")
			}
			if dims <= 0 {
				dims = esCfg.VectorDims
			}
			client, err := es.NewClient(esCfg)
			if err != nil {
				return err
			}
			if err := es.EnsureIndex(cmd.Context(), client, esCfg.IndexName, dims); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index %q is ready (dims=%d)\n", esCfg.IndexName, dims)
			return nil
		},
	}
	cmd.Flags().IntVar(&dims, "dims", 0, "vector dimensions (defaults to elasticsearch.vector_dims)")
	return cmd
}

func newReindexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Queue reindex tasks for every completed document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.load(); err != nil {
				return err
			}
			defer log.Sync()
			cfg := opts.cfg
			database.InitMySQL(cfg.Database.MySQL.DSN)
			client, err := es.NewClient(cfg.Elasticsearch)
			if err != nil {
				return err
			}
			producer := kafka.NewProducer(cfg.Kafka)
			defer producer.Close()

			admin := service.NewAdminService(
				repository.NewUserRepository(database.DB),
				repository.NewDocumentRepository(database.DB),
				es.NewIndexer(client, cfg.Elasticsearch.IndexName),
				nil,
				producer,
				nil,
				service.NewScoreThreshold(cfg.Search.MinScore),
				nil, nil,
			)
			result, err := admin.Reindex(cmd.Context(), &model.User{Username: "docctl", Role: model.RoleAdmin})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d documents, %d failed\n", result.Queued, result.Failed)
			return nil
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var username, category string
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Upload every file under a directory on behalf of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(); err != nil {
				return err
			}
			defer log.Sync()
			cfg := opts.cfg
			database.InitMySQL(cfg.Database.MySQL.DSN)
			storage.InitMinIO(cfg.MinIO)
			producer := kafka.NewProducer(cfg.Kafka)
			defer producer.Close()

			user, err := repository.NewUserRepository(database.DB).FindByUsername(username)
			if err != nil {
				return fmt.Errorf("用户 %q 不存在: %w", username, err)
			}
			var indexer *es.Indexer
			if client, err := es.NewClient(cfg.Elasticsearch); err == nil {
				indexer = es.NewIndexer(client, cfg.Elasticsearch.IndexName)
			}
			docs := service.NewDocumentService(
				repository.NewDocumentRepository(database.DB),
				storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName),
				indexer,
				producer,
				cfg.Upload,
			)
			imported, skipped := importDir(cmd.Context(), args[0], user, category, docs)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d files, skipped %d\n", imported, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "admin", "owner of the imported documents")
	cmd.Flags().StringVar(&category, "category", "", "category for every file (auto-detected when empty)")
	return cmd
}

// importDir 遍历目录并通过标准上传流程导入文件，单个文件失败只记录日志。
func importDir(ctx context.Context, dir string, user *model.User, category string, docs service.DocumentService) (imported, skipped int) {
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			skipped++
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			log.Warnf("import: 打开文件失败: %s, err=%v", path, err)
			skipped++
			return nil
		}
		defer f.Close()

		doc, err := docs.Upload(ctx, user, service.UploadRequest{
			Filename:    d.Name(),
			Size:        info.Size(),
			ContentType: tika.DetectMimeType(d.Name()),
			Category:    category,
			Body:        f,
		})
		if err != nil {
			log.Warnf("import: 上传失败: %s, err=%v", path, err)
			skipped++
			return nil
		}
		log.Infof("import: 已导入 %s (document=%d, category=%s)", d.Name(), doc.ID, doc.Category)
		imported++
		return nil
	})
	if walkErr != nil {
		log.Warnf("import: 遍历目录发生错误: %v", walkErr)
	}
	return imported, skipped
}
